package fuse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/logger"
)

type ConsolidateResult struct {
	MergesApplied int
	Pruned        int
}

// ConsolidateOwner re-blocks the owner's graph for duplicates that slipped
// past ingest-time resolution, applies the merges atomically, then prunes
// superseded variants outside the retention window.
func (e *Engine) ConsolidateOwner(ctx context.Context, ownerID string, retention time.Duration) (*ConsolidateResult, error) {
	result := &ConsolidateResult{}

	merges, updates, err := e.resolver.BlockExisting(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if len(merges) > 0 || len(updates) > 0 {
		applied, err := e.store.ApplyMutation(ctx, &graph.Mutation{
			OwnerID:     ownerID,
			UpdateNodes: updates,
			Merges:      merges,
		})
		if err != nil {
			return nil, err
		}
		result.MergesApplied = applied.MergesApplied
	}

	pruned, err := e.store.PruneSuperseded(ownerID, retention)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned

	if result.MergesApplied > 0 || result.Pruned > 0 {
		logger.Get().Info("owner consolidated",
			zap.String("owner_id", ownerID),
			zap.Int("merges", result.MergesApplied),
			zap.Int("pruned", result.Pruned))
	}

	return result, nil
}
