package memory

import (
	"github.com/bowerhall/graphmem/internal/graph"
	gerrors "github.com/bowerhall/graphmem/pkg/errors"
)

const maxTraversalDepth = 5

// Pattern is the bounded query surface: seed selection by name or label,
// optional relation filters, and a traversal depth. Not a query language.
type Pattern struct {
	Name      string
	Label     string
	Relations []string
	Depth     int
}

type Subgraph struct {
	Nodes []*graph.Node
	Edges []*graph.Edge
}

// QueryGraph matches the pattern against the owner's graph and returns the
// subgraph reachable from the seeds within the depth bound.
func (m *Manager) QueryGraph(ownerID string, p Pattern) (*Subgraph, error) {
	depth := p.Depth
	if depth <= 0 {
		depth = 1
	}
	if depth > maxTraversalDepth {
		depth = maxTraversalDepth
	}

	seeds, err := m.seedNodes(ownerID, p)
	if err != nil {
		return nil, err
	}

	nodeSet := make(map[int64]*graph.Node)
	for _, seed := range seeds {
		results, err := m.store.Neighborhood(seed.ID, depth, p.Relations)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			nodeSet[r.Node.ID] = r.Node
		}
	}

	allowed := make(map[string]bool, len(p.Relations))
	for _, r := range p.Relations {
		allowed[r] = true
	}

	subgraph := &Subgraph{}
	seenEdges := make(map[int64]bool)

	for id, node := range nodeSet {
		subgraph.Nodes = append(subgraph.Nodes, node)

		edges, err := m.store.GetEdgesFrom(id)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if seenEdges[edge.ID] {
				continue
			}
			if _, ok := nodeSet[edge.TargetID]; !ok {
				continue
			}
			if len(allowed) > 0 && !allowed[edge.Relation] {
				continue
			}
			seenEdges[edge.ID] = true
			subgraph.Edges = append(subgraph.Edges, edge)
		}
	}

	return subgraph, nil
}

func (m *Manager) seedNodes(ownerID string, p Pattern) ([]*graph.Node, error) {
	switch {
	case p.Name != "":
		node, err := m.store.FindNodeByCanonicalName(ownerID, p.Name, p.Label)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, nil
		}
		return []*graph.Node{node}, nil
	case p.Label != "":
		return m.store.FindNodesByLabel(ownerID, p.Label)
	default:
		return nil, gerrors.NewValidationError("pattern", "pattern needs a name or label filter")
	}
}
