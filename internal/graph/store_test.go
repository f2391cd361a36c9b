package graph

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/bowerhall/graphmem/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:", Options{Dimensions: 4})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// fakeEmbedder maps known words onto fixed unit-ish vectors so KNN order is
// predictable in tests.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0, 0}, nil
}

func TestOpenAndClose(t *testing.T) {
	store, err := Open(":memory:", Options{})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestApplyMutationInsertsNodesAndEdges(t *testing.T) {
	store := newTestStore(t)

	result, err := store.ApplyMutation(context.Background(), &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}},
			{Node: &Node{Label: "ORG", Name: "Acme Corp", Confidence: 0.8}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 1}, Relation: "WORKS_AT", Confidence: 0.85},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.NodesAdded)
	assert.Equal(t, 1, result.EdgesAdded)

	sarah, err := store.FindNodeByCanonicalName("alice", "sarah", "PERSON")
	require.NoError(t, err)
	require.NotNil(t, sarah)
	assert.Equal(t, "Sarah", sarah.Name)

	edges, err := store.GetEdgesFrom(sarah.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "WORKS_AT", edges[0].Relation)
}

func TestFindNodeByCanonicalNameIsCaseInsensitive(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ApplyMutation(context.Background(), &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PLACE", Name: "Springfield", Confidence: 0.9}},
		},
	})
	require.NoError(t, err)

	found, err := store.FindNodeByCanonicalName("alice", "SPRINGFIELD", "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Springfield", found.Name)
}

func TestPropertyIndexStaysInSync(t *testing.T) {
	store := newTestStore(t)

	result, err := store.ApplyMutation(context.Background(), &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9,
				Properties: map[string]string{"role": "engineer"}}},
		},
	})
	require.NoError(t, err)
	id := result.NodeIDs[0]

	byProp, err := store.FindNodesByProperty("alice", "role", "engineer")
	require.NoError(t, err)
	require.Len(t, byProp, 1)
	assert.Equal(t, id, byProp[0].ID)

	// updating the blob must rewrite the index in the same transaction
	_, err = store.ApplyMutation(context.Background(), &Mutation{
		OwnerID: "alice",
		UpdateNodes: []NodeUpdate{
			{ID: id, Confidence: 0.9, Properties: map[string]string{"role": "manager"}},
		},
	})
	require.NoError(t, err)

	byProp, err = store.FindNodesByProperty("alice", "role", "engineer")
	require.NoError(t, err)
	assert.Empty(t, byProp)

	byProp, err = store.FindNodesByProperty("alice", "role", "manager")
	require.NoError(t, err)
	require.Len(t, byProp, 1)

	node, err := store.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, "manager", node.Properties["role"])
}

func TestMergeRemapsEdgesAndRetiresOldNode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.7}},
			{Node: &Node{Label: "PERSON", Name: "Sarah Chen", Confidence: 0.95}},
			{Node: &Node{Label: "ORG", Name: "Acme", Confidence: 0.8}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 2}, Relation: "WORKS_AT", Confidence: 0.8},
		},
	})
	require.NoError(t, err)

	oldID, canonicalID := result.NodeIDs[0], result.NodeIDs[1]

	merged, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		Merges:  []Merge{{OldID: oldID, CanonicalID: canonicalID}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, merged.MergesApplied)

	// no dangling edges: the WORKS_AT edge now hangs off the survivor
	edges, err := store.GetEdgesFrom(canonicalID)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	old, err := store.GetNode(oldID)
	require.NoError(t, err)
	assert.False(t, old.IsCurrent)
	assert.NotNil(t, old.ValidUntil)

	for _, e := range edges {
		src, err := store.GetNode(e.SourceID)
		require.NoError(t, err)
		assert.True(t, src.IsCurrent)
	}
}

func TestMergeSurvivorConfidenceIsMax(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Bob", Confidence: 0.95}},
			{Node: &Node{Label: "PERSON", Name: "Robert", Confidence: 0.6}},
		},
	})
	require.NoError(t, err)

	_, err = store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		Merges:  []Merge{{OldID: result.NodeIDs[0], CanonicalID: result.NodeIDs[1]}},
	})
	require.NoError(t, err)

	survivor, err := store.GetNode(result.NodeIDs[1])
	require.NoError(t, err)
	assert.InDelta(t, 0.95, survivor.Confidence, 1e-9)
}

func TestDuplicateEdgeAbsorbedAtMaxConfidence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}},
			{Node: &Node{Label: "PLACE", Name: "Springfield", Confidence: 0.9}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 1}, Relation: "MOVED_TO", Confidence: 0.7},
		},
	})
	require.NoError(t, err)

	second, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{ID: result.NodeIDs[0]}, Target: NodeRef{ID: result.NodeIDs[1]}, Relation: "MOVED_TO", Confidence: 0.9},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, second.EdgesAdded)

	edges, err := store.GetEdgesFrom(result.NodeIDs[0])
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.InDelta(t, 0.9, edges[0].Confidence, 1e-9)
}

func TestMutationRollsBackOnIntegrityViolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{ID: 9999}, Relation: "KNOWS", Confidence: 0.5},
		},
	})
	require.Error(t, err)
	assert.True(t, gerrors.IsIntegrity(err))

	// the node insert in the same mutation must not have survived
	nodes, err := store.CurrentNodes("alice")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestEdgeEndpointsMustShareOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID:     "alice",
		UpsertNodes: []NodeUpsert{{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}}},
	})
	require.NoError(t, err)

	b, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID:     "bob",
		UpsertNodes: []NodeUpsert{{Node: &Node{Label: "PERSON", Name: "Max", Confidence: 0.9}}},
	})
	require.NoError(t, err)

	_, err = store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{ID: a.NodeIDs[0]}, Target: NodeRef{ID: b.NodeIDs[0]}, Relation: "KNOWS", Confidence: 0.5},
		},
	})
	require.Error(t, err)
	assert.True(t, gerrors.IsIntegrity(err))
}

func TestNeighborhoodAndShortestPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}},
			{Node: &Node{Label: "ORG", Name: "Acme", Confidence: 0.9}},
			{Node: &Node{Label: "PLACE", Name: "Springfield", Confidence: 0.9}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 1}, Relation: "WORKS_AT", Confidence: 0.9},
			{Source: NodeRef{Index: 1}, Target: NodeRef{Index: 2}, Relation: "LOCATED_IN", Confidence: 0.9},
		},
	})
	require.NoError(t, err)

	hood, err := store.Neighborhood(result.NodeIDs[0], 1, nil)
	require.NoError(t, err)
	require.Len(t, hood, 2)
	assert.Equal(t, "Sarah", hood[0].Node.Name)
	assert.Equal(t, 1, hood[1].Depth)

	filtered, err := store.Neighborhood(result.NodeIDs[0], 2, []string{"WORKS_AT"})
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	path, err := store.ShortestPath(result.NodeIDs[0], result.NodeIDs[2], 5)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, "Sarah", path[0].Name)
	assert.Equal(t, "Springfield", path[2].Name)

	none, err := store.ShortestPath(result.NodeIDs[0], result.NodeIDs[2], 1)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNeighborhoodAssignsMinimalDepths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// diamond with a tail: a->b->c plus the shortcut a->c, then c->d.
	// d sits at depth 2 through the shortcut and must not be lost when
	// c is first reached along the longer path.
	result, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}},
			{Node: &Node{Label: "ORG", Name: "Acme", Confidence: 0.9}},
			{Node: &Node{Label: "PLACE", Name: "Springfield", Confidence: 0.9}},
			{Node: &Node{Label: "PLACE", Name: "Ohio", Confidence: 0.9}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 1}, Relation: "WORKS_AT", Confidence: 0.9},
			{Source: NodeRef{Index: 1}, Target: NodeRef{Index: 2}, Relation: "LOCATED_IN", Confidence: 0.9},
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 2}, Relation: "LIVES_IN", Confidence: 0.9},
			{Source: NodeRef{Index: 2}, Target: NodeRef{Index: 3}, Relation: "LOCATED_IN", Confidence: 0.9},
		},
	})
	require.NoError(t, err)

	hood, err := store.Neighborhood(result.NodeIDs[0], 2, nil)
	require.NoError(t, err)
	require.Len(t, hood, 4)

	depths := make(map[string]int)
	for _, tr := range hood {
		depths[tr.Node.Name] = tr.Depth
	}
	assert.Equal(t, 0, depths["Sarah"])
	assert.Equal(t, 1, depths["Acme"])
	assert.Equal(t, 1, depths["Springfield"])
	assert.Equal(t, 2, depths["Ohio"])
}

func TestSimilarDocuments(t *testing.T) {
	store := newTestStore(t)
	store.SetEmbedder(&fakeEmbedder{vectors: map[string][]float32{
		"cats are great":  {1, 0, 0, 0},
		"dogs are loyal":  {0, 1, 0, 0},
		"tell me of cats": {0.9, 0.1, 0, 0},
	}})
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "alice", "cats are great", nil)
	require.NoError(t, err)
	_, err = store.AddDocument(ctx, "alice", "dogs are loyal", nil)
	require.NoError(t, err)

	results, err := store.SimilarDocuments(ctx, "alice", "tell me of cats", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cats are great", results[0].Document.Text)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.05)
}

func TestNormalizeEmbedding(t *testing.T) {
	v := normalizeEmbedding([]float32{3, 4, 0, 0})

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestEraseOwnerRemovesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}},
			{Node: &Node{Label: "ORG", Name: "Acme", Confidence: 0.9}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 1}, Relation: "WORKS_AT", Confidence: 0.9},
		},
	})
	require.NoError(t, err)

	_, err = store.AddDocument(ctx, "alice", "sarah works at acme", nil)
	require.NoError(t, err)

	_, err = store.ApplyMutation(ctx, &Mutation{
		OwnerID:     "bob",
		UpsertNodes: []NodeUpsert{{Node: &Node{Label: "PERSON", Name: "Max", Confidence: 0.9}}},
	})
	require.NoError(t, err)

	require.NoError(t, store.EraseOwner("alice"))

	stats, err := store.Stats("alice")
	require.NoError(t, err)
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.Edges)
	assert.Zero(t, stats.Documents)

	// other owners untouched
	bobStats, err := store.Stats("bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bobStats.Nodes)
}

func TestPruneSupersededRespectsRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.7}},
			{Node: &Node{Label: "PERSON", Name: "Sarah Chen", Confidence: 0.9}},
		},
	})
	require.NoError(t, err)

	_, err = store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		Merges:  []Merge{{OldID: result.NodeIDs[0], CanonicalID: result.NodeIDs[1]}},
	})
	require.NoError(t, err)

	// inside the window nothing qualifies
	pruned, err := store.PruneSuperseded("alice", 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	// negative retention puts the cutoff in the future so retired rows qualify
	pruned, err = store.PruneSuperseded("alice", -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = store.GetNode(result.NodeIDs[0])
	require.Error(t, err)
}

func TestStatsCountsByLabelAndRelation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyMutation(ctx, &Mutation{
		OwnerID: "alice",
		UpsertNodes: []NodeUpsert{
			{Node: &Node{Label: "PERSON", Name: "Sarah", Confidence: 0.9}},
			{Node: &Node{Label: "PERSON", Name: "Max", Confidence: 0.9}},
			{Node: &Node{Label: "ORG", Name: "Acme", Confidence: 0.9}},
		},
		UpsertEdges: []EdgeUpsert{
			{Source: NodeRef{Index: 0}, Target: NodeRef{Index: 2}, Relation: "WORKS_AT", Confidence: 0.9},
		},
	})
	require.NoError(t, err)

	stats, err := store.Stats("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 1, stats.Edges)
	assert.Equal(t, 2, stats.Labels["PERSON"])
	assert.Equal(t, 1, stats.Relations["WORKS_AT"])
}
