package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/logger"
)

// BlockExisting re-blocks an owner's current nodes against each other and
// proposes merges for pairs that slipped past ingest-time resolution. Exact
// canonical duplicates merge outright; near-duplicates go to the judge.
func (r *Resolver) BlockExisting(ctx context.Context, ownerID string) ([]graph.Merge, []graph.NodeUpdate, error) {
	nodes, err := r.store.CurrentNodes(ownerID)
	if err != nil {
		return nil, nil, err
	}
	if len(nodes) < 2 {
		return nil, nil, nil
	}

	var merges []graph.Merge
	var updates []graph.NodeUpdate
	taken := make(map[int64]bool)

	record := func(a, b *graph.Node) {
		r.collapse([]*graph.Node{a, b}, &merges, &updates, taken)
	}

	// exact duplicates first, no judge needed. Each duplicate group
	// collapses into one survivor in a single step; chained pairwise
	// merges would compute later unions from stale property copies.
	groups := make(map[string][]*graph.Node)
	var keys []string
	for _, n := range nodes {
		key := n.CanonicalName + "\x00" + n.Label
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], n)
	}

	for _, key := range keys {
		if group := groups[key]; len(group) > 1 {
			r.collapse(group, &merges, &updates, taken)
		}
	}

	if r.embedder == nil || r.judge == nil {
		return merges, updates, nil
	}

	for _, n := range nodes {
		if taken[n.ID] {
			continue
		}

		embedding, err := r.embedder.Embed(ctx, n.Label+": "+n.Name)
		if err != nil {
			logger.Get().Warn("consolidation blocking aborted, embedder unavailable",
				zap.String("owner_id", ownerID), zap.Error(err))
			return merges, updates, nil
		}

		scored, err := r.store.SimilarNodes(ctx, ownerID, embedding, r.cfg.BlockingTopK)
		if err != nil {
			return nil, nil, err
		}

		for _, candidate := range scored {
			if candidate.Similarity < r.cfg.BlockingThreshold {
				break
			}
			if candidate.Node.ID == n.ID || taken[candidate.Node.ID] {
				continue
			}

			verdict, err := r.judge.Judge(ctx, describeNode(n), describeNode(candidate.Node))
			if err != nil {
				logger.Get().Warn("judge unavailable during consolidation",
					zap.String("owner_id", ownerID), zap.Error(err))
				continue
			}

			if verdict.Match {
				record(n, candidate.Node)
				break
			}
		}
	}

	return merges, updates, nil
}

// collapse merges a duplicate group into its single survivor: one update
// carrying the union of every member's properties and the group's max
// confidence, plus one merge per loser.
func (r *Resolver) collapse(group []*graph.Node, merges *[]graph.Merge, updates *[]graph.NodeUpdate, taken map[int64]bool) {
	survivor := group[0]
	for _, n := range group[1:] {
		survivor, _ = pickSurvivor(survivor, n)
	}

	merged := survivor.Properties
	confidence := survivor.Confidence

	for _, n := range group {
		taken[n.ID] = true
		if n.ID == survivor.ID {
			continue
		}

		nWins := n.Confidence > survivor.Confidence ||
			(n.Confidence == survivor.Confidence && n.UpdatedAt.After(survivor.UpdatedAt))
		merged = unionProps(merged, n.Properties, nWins)

		if n.Confidence > confidence {
			confidence = n.Confidence
		}
		*merges = append(*merges, graph.Merge{OldID: n.ID, CanonicalID: survivor.ID})
	}

	*updates = append(*updates, graph.NodeUpdate{
		ID:         survivor.ID,
		Properties: merged,
		Confidence: confidence,
		SourceText: survivor.SourceText,
	})
}

// pickSurvivor keeps the higher-confidence node, older node on ties.
func pickSurvivor(a, b *graph.Node) (survivor, loser *graph.Node) {
	if b.Confidence > a.Confidence || (b.Confidence == a.Confidence && b.ID < a.ID) {
		return b, a
	}
	return a, b
}
