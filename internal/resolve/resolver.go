package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/extract"
	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/logger"
)

type Config struct {
	BlockingThreshold float64
	BlockingTopK      int
}

// Resolver deduplicates candidate entities against the persistent graph in
// three tiers: exact canonical-name match, embedding blocking, and judge
// adjudication. Only blocked pairs ever reach the judge.
type Resolver struct {
	store    *graph.Store
	embedder graph.Embedder
	judge    Judge
	cfg      Config
}

func New(store *graph.Store, embedder graph.Embedder, judge Judge, cfg Config) *Resolver {
	if cfg.BlockingThreshold == 0 {
		cfg.BlockingThreshold = 0.85
	}
	if cfg.BlockingTopK == 0 {
		cfg.BlockingTopK = 10
	}
	return &Resolver{store: store, embedder: embedder, judge: judge, cfg: cfg}
}

const (
	TierExact   = 1
	TierBlocked = 2
	TierJudged  = 3
)

// ResolvedEntity is one deduplicated candidate. NodeID is zero for entities
// new to the graph; otherwise Node carries the matched current node.
type ResolvedEntity struct {
	Entity    extract.Entity
	NodeID    int64
	Node      *graph.Node
	Tier      int
	Embedding []float32
}

type Result struct {
	Entities []ResolvedEntity
	// ByName maps canonical candidate names to Entities indexes so edge
	// endpoints can be resolved by the names the extractor used.
	ByName map[string]int
}

// Resolve deduplicates the slice internally, then matches each unique
// candidate against the owner's existing graph tier by tier.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, entities []extract.Entity) (*Result, error) {
	result := &Result{ByName: make(map[string]int)}

	for _, entity := range dedupeSlice(entities) {
		resolved, err := r.resolveOne(ctx, ownerID, entity)
		if err != nil {
			return nil, err
		}

		key := graph.Canonicalize(entity.Name)
		if _, taken := result.ByName[key]; !taken {
			result.ByName[key] = len(result.Entities)
		}
		result.Entities = append(result.Entities, resolved)
	}

	return result, nil
}

func (r *Resolver) resolveOne(ctx context.Context, ownerID string, entity extract.Entity) (ResolvedEntity, error) {
	resolved := ResolvedEntity{Entity: entity}

	// Tier 1: exact canonical-name match, labels must agree. A same-named
	// node with a different label is left for blocking; the judge decides
	// whether the two are the same thing.
	node, err := r.store.FindNodeByCanonicalName(ownerID, entity.Name, entity.Label)
	if err != nil {
		return resolved, err
	}
	if node != nil {
		resolved.NodeID = node.ID
		resolved.Node = node
		resolved.Tier = TierExact
		return resolved, nil
	}

	if r.embedder == nil || r.judge == nil {
		return resolved, nil
	}

	// Tier 2: embedding blocking narrows the comparison set
	embedding, err := r.embedder.Embed(ctx, embedText(entity))
	if err != nil {
		logger.Get().Warn("blocking skipped, embedder unavailable",
			zap.String("owner_id", ownerID), zap.String("name", entity.Name), zap.Error(err))
		return resolved, nil
	}
	resolved.Embedding = embedding

	scored, err := r.store.SimilarNodes(ctx, ownerID, embedding, r.cfg.BlockingTopK)
	if err != nil {
		return resolved, err
	}

	// Tier 3: the judge adjudicates each blocked pair
	for _, candidate := range scored {
		if candidate.Similarity < r.cfg.BlockingThreshold {
			break
		}

		verdict, err := r.judge.Judge(ctx, describeEntity(entity), describeNode(candidate.Node))
		if err != nil {
			logger.Get().Warn("judge unavailable, pair left unmerged",
				zap.String("name", entity.Name), zap.String("candidate", candidate.Node.Name), zap.Error(err))
			continue
		}

		if verdict.Match {
			logger.Get().Debug("entities merged by judge",
				zap.String("name", entity.Name), zap.String("canonical", candidate.Node.Name),
				zap.Float64("confidence", verdict.Confidence), zap.String("rationale", verdict.Rationale))

			resolved.NodeID = candidate.Node.ID
			resolved.Node = candidate.Node
			resolved.Tier = TierJudged
			return resolved, nil
		}
	}

	return resolved, nil
}

// dedupeSlice collapses duplicate extractions of the same entity within one
// slice: properties union, confidence takes the max.
func dedupeSlice(entities []extract.Entity) []extract.Entity {
	type key struct{ name, label string }

	index := make(map[key]int)
	var out []extract.Entity

	for _, e := range entities {
		k := key{graph.Canonicalize(e.Name), e.Label}

		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, e)
			continue
		}

		out[i].Properties = unionProps(out[i].Properties, e.Properties, e.Confidence >= out[i].Confidence)
		if e.Confidence > out[i].Confidence {
			out[i].Confidence = e.Confidence
		}
	}

	return out
}

// MergeProperties unions a candidate's properties into an existing node's.
// Conflicts favor the higher-confidence side; at equal confidence the newer
// (candidate) value wins.
func MergeProperties(node *graph.Node, entity extract.Entity) map[string]string {
	return unionProps(node.Properties, entity.Properties, entity.Confidence >= node.Confidence)
}

func unionProps(base, incoming map[string]string, incomingWins bool) map[string]string {
	merged := make(map[string]string, len(base)+len(incoming))
	for k, v := range base {
		merged[k] = v
	}

	for k, v := range incoming {
		if _, exists := merged[k]; !exists || incomingWins {
			merged[k] = v
		}
	}

	return merged
}

func describeEntity(e extract.Entity) EntityDescription {
	return EntityDescription{Name: e.Name, Label: e.Label, Properties: e.Properties}
}

func embedText(e extract.Entity) string {
	return fmt.Sprintf("%s: %s", e.Label, e.Name)
}
