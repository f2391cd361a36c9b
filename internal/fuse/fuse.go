package fuse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/extract"
	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/logger"
	"github.com/bowerhall/graphmem/internal/resolve"
)

// coMentionConfidence marks inferred co-mention edges well below stated facts.
const coMentionConfidence = 0.3

const coMentionRelation = "MENTIONED_WITH"

type Config struct {
	// NonExclusiveRelations may coexist between one endpoint pair without
	// conflicting with other relation types.
	NonExclusiveRelations []string
	InferCoMentions       bool
}

// Engine merges extraction slices into the persistent graph. It owns no
// state between calls; every fuse is one atomic mutation against the store.
type Engine struct {
	store        *graph.Store
	resolver     *resolve.Resolver
	embedder     graph.Embedder
	inferences   bool
	nonExclusive map[string]bool
}

func New(store *graph.Store, resolver *resolve.Resolver, embedder graph.Embedder, cfg Config) *Engine {
	nonExclusive := make(map[string]bool, len(cfg.NonExclusiveRelations))
	for _, r := range cfg.NonExclusiveRelations {
		nonExclusive[r] = true
	}

	return &Engine{
		store:        store,
		resolver:     resolver,
		embedder:     embedder,
		inferences:   cfg.InferCoMentions,
		nonExclusive: nonExclusive,
	}
}

// Fuse resolves the slice against the owner's graph and commits the result
// atomically. A cancelled context before commit leaves the graph untouched.
func (e *Engine) Fuse(ctx context.Context, ownerID string, slice *extract.Slice) (*graph.MutationResult, error) {
	resolution, err := e.resolver.Resolve(ctx, ownerID, slice.Entities)
	if err != nil {
		return nil, err
	}

	mutation, err := e.buildMutation(ctx, ownerID, slice, resolution)
	if err != nil {
		return nil, err
	}

	if mutation.Empty() {
		return &graph.MutationResult{}, nil
	}

	return e.store.ApplyMutation(ctx, mutation)
}

func (e *Engine) buildMutation(ctx context.Context, ownerID string, slice *extract.Slice, resolution *resolve.Result) (*graph.Mutation, error) {
	m := &graph.Mutation{OwnerID: ownerID}

	// newIndex maps resolution entity indexes to UpsertNodes positions
	newIndex := make(map[int]int)

	for i, re := range resolution.Entities {
		if re.NodeID != 0 {
			merged := resolve.MergeProperties(re.Node, re.Entity)

			confidence := re.Node.Confidence
			if re.Entity.Confidence > confidence {
				confidence = re.Entity.Confidence
			}

			m.UpdateNodes = append(m.UpdateNodes, graph.NodeUpdate{
				ID:         re.NodeID,
				Properties: merged,
				Confidence: confidence,
				SourceText: re.Node.SourceText,
			})
			continue
		}

		if re.Embedding == nil && e.embedder != nil {
			emb, err := e.embedder.Embed(ctx, fmt.Sprintf("%s: %s", re.Entity.Label, re.Entity.Name))
			if err != nil {
				logger.Get().Warn("node stored without embedding",
					zap.String("name", re.Entity.Name), zap.Error(err))
			} else {
				re.Embedding = emb
			}
		}

		newIndex[i] = len(m.UpsertNodes)
		m.UpsertNodes = append(m.UpsertNodes, graph.NodeUpsert{
			Node: &graph.Node{
				Label:      re.Entity.Label,
				Name:       re.Entity.Name,
				Properties: re.Entity.Properties,
				Confidence: re.Entity.Confidence,
				SourceText: slice.SourceText,
			},
			Embedding: re.Embedding,
		})
	}

	relations := slice.Relations
	if e.inferences {
		relations = append(relations, inferCoMentions(slice)...)
	}

	for _, rel := range relations {
		if err := e.addRelation(m, ownerID, rel, resolution, newIndex); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// addRelation resolves both endpoints and applies relation-type conflict
// resolution against edges already connecting the pair.
func (e *Engine) addRelation(m *graph.Mutation, ownerID string, rel extract.Relation, resolution *resolve.Result, newIndex map[int]int) error {
	source, ok := e.endpointRef(ownerID, rel.Source, resolution, newIndex)
	if !ok {
		logger.Get().Debug("relation skipped, unknown endpoint",
			zap.String("relation", rel.Relation), zap.String("endpoint", rel.Source))
		return nil
	}

	target, ok := e.endpointRef(ownerID, rel.Target, resolution, newIndex)
	if !ok {
		logger.Get().Debug("relation skipped, unknown endpoint",
			zap.String("relation", rel.Relation), zap.String("endpoint", rel.Target))
		return nil
	}

	if source.ID != 0 && target.ID != 0 {
		existing, err := e.edgesBetween(source.ID, target.ID)
		if err != nil {
			return err
		}

		for _, edge := range existing {
			if edge.Relation == rel.Relation {
				continue
			}
			if e.nonExclusive[edge.Relation] || e.nonExclusive[rel.Relation] {
				continue
			}

			// conflicting exclusive relations: higher confidence wins
			if rel.Confidence > edge.Confidence {
				m.CloseEdges = append(m.CloseEdges, edge.ID)
			} else {
				return nil
			}
		}
	}

	m.UpsertEdges = append(m.UpsertEdges, graph.EdgeUpsert{
		Source:     source,
		Target:     target,
		Relation:   rel.Relation,
		Confidence: rel.Confidence,
	})

	return nil
}

func (e *Engine) endpointRef(ownerID, name string, resolution *resolve.Result, newIndex map[int]int) (graph.NodeRef, bool) {
	if i, ok := resolution.ByName[graph.Canonicalize(name)]; ok {
		if resolution.Entities[i].NodeID != 0 {
			return graph.NodeRef{ID: resolution.Entities[i].NodeID}, true
		}
		if pos, ok := newIndex[i]; ok {
			return graph.NodeRef{Index: pos}, true
		}
	}

	// the extractor may reference an entity it did not re-list this pass
	node, err := e.store.FindNodeByCanonicalName(ownerID, name, "")
	if err != nil || node == nil {
		return graph.NodeRef{}, false
	}

	return graph.NodeRef{ID: node.ID}, true
}

func (e *Engine) edgesBetween(sourceID, targetID int64) ([]*graph.Edge, error) {
	from, err := e.store.GetEdgesFrom(sourceID)
	if err != nil {
		return nil, err
	}

	var between []*graph.Edge
	for _, edge := range from {
		if edge.TargetID == targetID {
			between = append(between, edge)
		}
	}

	return between, nil
}

// inferCoMentions proposes low-confidence edges between entities mentioned
// together with no stated relation between them.
func inferCoMentions(slice *extract.Slice) []extract.Relation {
	related := make(map[string]bool)
	for _, rel := range slice.Relations {
		a, b := graph.Canonicalize(rel.Source), graph.Canonicalize(rel.Target)
		related[a+"\x00"+b] = true
		related[b+"\x00"+a] = true
	}

	var inferred []extract.Relation
	for i := 0; i < len(slice.Entities); i++ {
		for j := i + 1; j < len(slice.Entities); j++ {
			a, b := graph.Canonicalize(slice.Entities[i].Name), graph.Canonicalize(slice.Entities[j].Name)
			if a == b || related[a+"\x00"+b] {
				continue
			}

			inferred = append(inferred, extract.Relation{
				Source:     slice.Entities[i].Name,
				Target:     slice.Entities[j].Name,
				Relation:   coMentionRelation,
				Confidence: coMentionConfidence,
				Inferred:   true,
			})
		}
	}

	return inferred
}
