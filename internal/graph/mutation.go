package graph

import (
	"context"
	"database/sql"
	"fmt"

	gerrors "github.com/bowerhall/graphmem/pkg/errors"
)

// NodeRef points an edge endpoint at either an existing node (ID) or a node
// created by the same mutation (Index into UpsertNodes, when ID is zero).
type NodeRef struct {
	ID    int64
	Index int
}

type NodeUpsert struct {
	Node      *Node
	Embedding []float32
}

// NodeUpdate rewrites a node's property blob in place. Properties is the
// complete merged set, not a delta; the property index is resynced from it.
type NodeUpdate struct {
	ID         int64
	Properties map[string]string
	Confidence float64
	SourceText string
	Embedding  []float32
}

// Merge folds OldID into CanonicalID: edges are remapped, the survivor's
// confidence is raised to the max of the pair, and the old node is retired.
type Merge struct {
	OldID       int64
	CanonicalID int64
}

type EdgeUpsert struct {
	Source     NodeRef
	Target     NodeRef
	Relation   string
	Properties map[string]string
	Confidence float64
}

// Mutation is one atomic change set against a single owner's subgraph.
// ApplyMutation commits all of it or none of it.
type Mutation struct {
	OwnerID     string
	UpsertNodes []NodeUpsert
	UpdateNodes []NodeUpdate
	Merges      []Merge
	UpsertEdges []EdgeUpsert
	CloseEdges  []int64
}

type MutationResult struct {
	NodeIDs       []int64
	NodesAdded    int
	EdgesAdded    int
	MergesApplied int
	EdgesClosed   int
}

func (m *Mutation) Empty() bool {
	return len(m.UpsertNodes) == 0 && len(m.UpdateNodes) == 0 &&
		len(m.Merges) == 0 && len(m.UpsertEdges) == 0 && len(m.CloseEdges) == 0
}

// ApplyMutation applies the full change set in one transaction. Order: node
// inserts, node updates, merges with edge remap, edge upserts, edge closes.
// Any integrity violation rolls the whole transaction back.
func (s *Store) ApplyMutation(ctx context.Context, m *Mutation) (*MutationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result := &MutationResult{}

	for _, up := range m.UpsertNodes {
		id, err := s.insertNode(tx, m.OwnerID, up)
		if err != nil {
			return nil, err
		}
		result.NodeIDs = append(result.NodeIDs, id)
		result.NodesAdded++
	}

	for _, up := range m.UpdateNodes {
		if err := s.updateNode(tx, m.OwnerID, up); err != nil {
			return nil, err
		}
	}

	canonical := make(map[int64]int64, len(m.Merges))
	for _, merge := range m.Merges {
		if err := s.applyMerge(tx, m.OwnerID, merge); err != nil {
			return nil, err
		}
		canonical[merge.OldID] = merge.CanonicalID
		result.MergesApplied++
	}

	for _, up := range m.UpsertEdges {
		added, err := s.upsertEdge(tx, m.OwnerID, up, result.NodeIDs, canonical)
		if err != nil {
			return nil, err
		}
		if added {
			result.EdgesAdded++
		}
	}

	for _, edgeID := range m.CloseEdges {
		if _, err := tx.Exec(queryCloseEdge, edgeID); err != nil {
			return nil, err
		}
		result.EdgesClosed++
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) insertNode(tx *sql.Tx, ownerID string, up NodeUpsert) (int64, error) {
	n := up.Node
	if n.Name == "" {
		return 0, gerrors.NewValidationError("name", "node name must not be empty")
	}
	if n.Label == "" {
		return 0, gerrors.NewValidationError("label", "node label must not be empty")
	}

	res, err := tx.Exec(queryInsertNode, ownerID, n.Label, n.Name, Canonicalize(n.Name),
		marshalProps(n.Properties), n.Confidence, n.SourceText)
	if err != nil {
		return 0, err
	}

	id, _ := res.LastInsertId()

	if err := syncNodeProps(tx, id, n.Properties); err != nil {
		return 0, err
	}

	if up.Embedding != nil {
		blob, err := serializeEmbedding(up.Embedding)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(queryInsertVecNode, id, blob); err != nil {
			return 0, err
		}
	}

	return id, nil
}

func (s *Store) updateNode(tx *sql.Tx, ownerID string, up NodeUpdate) error {
	owner, current, err := nodeOwner(tx, up.ID)
	if err != nil {
		return err
	}
	if owner != ownerID || !current {
		return gerrors.NewIntegrityError("update targets a node outside the owner's current graph", up.ID, 0)
	}

	if _, err := tx.Exec(queryUpdateNodeProps, marshalProps(up.Properties), up.Confidence, up.SourceText, up.ID); err != nil {
		return err
	}

	if err := syncNodeProps(tx, up.ID, up.Properties); err != nil {
		return err
	}

	if up.Embedding != nil {
		blob, err := serializeEmbedding(up.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(queryInsertVecNode, up.ID, blob); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) applyMerge(tx *sql.Tx, ownerID string, merge Merge) error {
	for _, id := range []int64{merge.OldID, merge.CanonicalID} {
		owner, current, err := nodeOwner(tx, id)
		if err != nil {
			return err
		}
		if owner != ownerID || !current {
			return gerrors.NewIntegrityError("merge references a node outside the owner's current graph", id, 0)
		}
	}

	var oldConfidence float64
	if err := tx.QueryRow(`SELECT confidence FROM nodes WHERE id = ?`, merge.OldID).Scan(&oldConfidence); err != nil {
		return err
	}

	// remap before retiring so no edge ever points at a retired node
	if _, err := tx.Exec(queryRemapEdgeSources, merge.CanonicalID, merge.OldID); err != nil {
		return err
	}
	if _, err := tx.Exec(queryRemapEdgeTargets, merge.CanonicalID, merge.OldID); err != nil {
		return err
	}

	if err := dedupeRemappedEdges(tx, merge.CanonicalID); err != nil {
		return err
	}

	if _, err := tx.Exec(queryRaiseNodeConfidence, oldConfidence, merge.CanonicalID); err != nil {
		return err
	}

	if _, err := tx.Exec(queryRetireNode, merge.OldID); err != nil {
		return err
	}
	if _, err := tx.Exec(queryDeleteNodeProps, merge.OldID); err != nil {
		return err
	}
	if _, err := tx.Exec(queryDeleteVecNode, merge.OldID); err != nil {
		return err
	}

	return nil
}

// dedupeRemappedEdges collapses current edges made identical by a remap,
// keeping the highest-confidence copy, and closes self-loops.
func dedupeRemappedEdges(tx *sql.Tx, nodeID int64) error {
	rows, err := tx.Query(queryGetEdgesAt, nodeID, nodeID)
	if err != nil {
		return err
	}

	edges, err := scanEdges(rows)
	if err != nil {
		return err
	}

	type key struct {
		source, target int64
		relation       string
	}
	best := make(map[key]*Edge)
	var retire []int64

	for _, e := range edges {
		if e.SourceID == e.TargetID {
			retire = append(retire, e.ID)
			continue
		}

		k := key{e.SourceID, e.TargetID, e.Relation}
		kept, ok := best[k]
		if !ok {
			best[k] = e
			continue
		}

		if e.Confidence > kept.Confidence {
			retire = append(retire, kept.ID)
			best[k] = e
		} else {
			retire = append(retire, e.ID)
		}
	}

	for _, id := range retire {
		if _, err := tx.Exec(queryCloseEdge, id); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) upsertEdge(tx *sql.Tx, ownerID string, up EdgeUpsert, newIDs []int64, canonical map[int64]int64) (bool, error) {
	sourceID, err := resolveRef(up.Source, newIDs, canonical)
	if err != nil {
		return false, err
	}
	targetID, err := resolveRef(up.Target, newIDs, canonical)
	if err != nil {
		return false, err
	}

	if sourceID == targetID {
		return false, nil
	}

	for _, id := range []int64{sourceID, targetID} {
		owner, current, err := nodeOwner(tx, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return false, gerrors.NewIntegrityError("edge endpoint does not exist", id, 0)
			}
			return false, err
		}
		if owner != ownerID {
			return false, gerrors.NewIntegrityError("edge endpoints must belong to the same owner", id, 0)
		}
		if !current {
			return false, gerrors.NewIntegrityError("edge endpoint is not a current node", id, 0)
		}
	}

	// an identical current edge absorbs the new one at max confidence
	var existingID int64
	err = tx.QueryRow(queryGetEdgeBetweenID, sourceID, targetID, up.Relation).Scan(&existingID)
	if err == nil {
		_, err := tx.Exec(queryRaiseEdgeConfidence, up.Confidence, existingID)
		return false, err
	}
	if err != sql.ErrNoRows {
		return false, err
	}

	if _, err := tx.Exec(queryInsertEdge, ownerID, sourceID, targetID, up.Relation,
		marshalProps(up.Properties), up.Confidence); err != nil {
		return false, err
	}

	return true, nil
}

func resolveRef(ref NodeRef, newIDs []int64, canonical map[int64]int64) (int64, error) {
	id := ref.ID
	if id == 0 {
		if ref.Index < 0 || ref.Index >= len(newIDs) {
			return 0, gerrors.NewIntegrityError(fmt.Sprintf("edge references unknown new node index %d", ref.Index), 0, 0)
		}
		id = newIDs[ref.Index]
	}

	if mapped, ok := canonical[id]; ok {
		id = mapped
	}

	return id, nil
}

func nodeOwner(tx *sql.Tx, id int64) (string, bool, error) {
	var owner string
	var current bool
	err := tx.QueryRow(queryCountNodeOwner, id).Scan(&owner, &current)
	return owner, current, err
}

