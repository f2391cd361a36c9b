package graph

type TraversalResult struct {
	Node     *Node
	Relation string
	Depth    int
}

// Neighborhood walks outward from a node, direction-agnostic, up to maxDepth
// hops. When relations is non-empty only edges with those relation types are
// followed. The starting node is included at depth 0.
func (s *Store) Neighborhood(nodeID int64, maxDepth int, relations []string) ([]*TraversalResult, error) {
	allowed := make(map[string]bool, len(relations))
	for _, r := range relations {
		allowed[r] = true
	}

	type hop struct {
		id       int64
		relation string
	}

	visited := map[int64]bool{nodeID: true}
	frontier := []hop{{id: nodeID}}
	var results []*TraversalResult

	// breadth-first so every node gets its minimal depth; a depth-first walk
	// can reach a node via a long path first and then skip the short one
	for depth := 0; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []hop

		for _, h := range frontier {
			node, err := s.GetNode(h.id)
			if err != nil {
				return nil, err
			}

			results = append(results, &TraversalResult{
				Node:     node,
				Relation: h.relation,
				Depth:    depth,
			})

			if depth == maxDepth {
				continue
			}

			edges, err := s.GetEdgesAt(h.id)
			if err != nil {
				return nil, err
			}

			for _, edge := range edges {
				if len(allowed) > 0 && !allowed[edge.Relation] {
					continue
				}

				targetID := edge.TargetID
				rel := edge.Relation
				if edge.TargetID == h.id {
					targetID = edge.SourceID
					rel = "inverse:" + rel
				}

				if visited[targetID] {
					continue
				}
				visited[targetID] = true
				next = append(next, hop{id: targetID, relation: rel})
			}
		}

		frontier = next
	}

	return results, nil
}

// ShortestPath finds the shortest undirected path between two nodes, bounded
// by maxDepth hops. Returns nil when no path exists within the bound.
func (s *Store) ShortestPath(fromID, toID int64, maxDepth int) ([]*Node, error) {
	if fromID == toID {
		n, err := s.GetNode(fromID)
		if err != nil {
			return nil, err
		}
		return []*Node{n}, nil
	}

	parent := map[int64]int64{fromID: fromID}
	frontier := []int64{fromID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int64

		for _, id := range frontier {
			edges, err := s.GetEdgesAt(id)
			if err != nil {
				return nil, err
			}

			for _, edge := range edges {
				neighbor := edge.TargetID
				if neighbor == id {
					neighbor = edge.SourceID
				}

				if _, seen := parent[neighbor]; seen {
					continue
				}
				parent[neighbor] = id

				if neighbor == toID {
					return s.hydratePath(parent, fromID, toID)
				}

				next = append(next, neighbor)
			}
		}

		frontier = next
	}

	return nil, nil
}

func (s *Store) hydratePath(parent map[int64]int64, fromID, toID int64) ([]*Node, error) {
	var ids []int64
	for id := toID; ; id = parent[id] {
		ids = append(ids, id)
		if id == fromID {
			break
		}
	}

	path := make([]*Node, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		n, err := s.GetNode(ids[i])
		if err != nil {
			return nil, err
		}
		path = append(path, n)
	}

	return path, nil
}
