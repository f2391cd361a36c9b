package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/llm"
	"github.com/bowerhall/graphmem/internal/logger"
	gerrors "github.com/bowerhall/graphmem/pkg/errors"
)

// inferredConfidenceCap bounds the confidence of relations produced by the
// inference pass below directly-stated facts.
const inferredConfidenceCap = 0.5

type Entity struct {
	Name       string            `json:"name"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties"`
	Confidence float64           `json:"confidence"`
}

type Relation struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
	Inferred   bool    `json:"-"`
}

// Slice is one unmerged extraction result. Duplicates against the persistent
// graph are expected; deduplication belongs to the resolver.
type Slice struct {
	Entities   []Entity
	Relations  []Relation
	SourceText string
}

type payload struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

type Extractor struct {
	llm          llm.LLM
	maxGleanings int
	inference    bool
}

func New(provider llm.LLM, maxGleanings int, inference bool) *Extractor {
	if maxGleanings < 0 {
		maxGleanings = 0
	}
	return &Extractor{llm: provider, maxGleanings: maxGleanings, inference: inference}
}

// Extract runs the multi-pass pipeline: a first labeling+relation pass,
// bounded gleaning passes that are shown the prior result and asked only for
// missed information, and a final inference pass for implied relations.
// An empty gleaning delta terminates early.
func (e *Extractor) Extract(ctx context.Context, text, contextInfo string) (*Slice, error) {
	slice := &Slice{SourceText: text}

	first, err := e.pass(ctx, fmt.Sprintf(extractPrompt, contextInfo, text))
	if err != nil {
		if gerrors.IsValidation(err) {
			logger.Get().Warn("extraction payload dropped", zap.Error(err))
			return slice, nil
		}
		return nil, err
	}
	appendPayload(slice, first, false)

	for pass := 0; pass < e.maxGleanings; pass++ {
		prior, _ := json.Marshal(payload{Entities: slice.Entities, Relations: slice.Relations})

		delta, err := e.pass(ctx, fmt.Sprintf(gleanPrompt, string(prior), text))
		if err != nil {
			if gerrors.IsValidation(err) {
				logger.Get().Warn("gleaning pass dropped", zap.Int("pass", pass+1), zap.Error(err))
				break
			}
			return nil, err
		}

		if len(delta.Entities) == 0 && len(delta.Relations) == 0 {
			break
		}

		appendPayload(slice, delta, false)
	}

	if e.inference {
		prior, _ := json.Marshal(payload{Entities: slice.Entities, Relations: slice.Relations})

		inferred, err := e.pass(ctx, fmt.Sprintf(inferPrompt, string(prior), text))
		if err != nil {
			logger.Get().Warn("inference pass dropped", zap.Error(err))
		} else {
			inferred.Entities = nil
			appendPayload(slice, inferred, true)
		}
	}

	return slice, nil
}

func (e *Extractor) pass(ctx context.Context, prompt string) (*payload, error) {
	response, err := e.llm.Chat(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, err
	}

	return parsePayload(response)
}

// appendPayload folds a pass result into the slice, dropping entries that
// fail validation. Inferred relations are capped below stated confidence.
func appendPayload(slice *Slice, p *payload, inferred bool) {
	for _, entity := range p.Entities {
		if err := validateEntity(entity); err != nil {
			logger.Get().Warn("entity dropped", zap.String("name", entity.Name), zap.Error(err))
			continue
		}
		slice.Entities = append(slice.Entities, entity)
	}

	for _, rel := range p.Relations {
		if err := validateRelation(rel); err != nil {
			logger.Get().Warn("relation dropped", zap.String("relation", rel.Relation), zap.Error(err))
			continue
		}

		if inferred {
			rel.Inferred = true
			if rel.Confidence > inferredConfidenceCap {
				rel.Confidence = inferredConfidenceCap
			}
		}
		slice.Relations = append(slice.Relations, rel)
	}
}

func validateEntity(e Entity) error {
	if strings.TrimSpace(e.Name) == "" {
		return gerrors.NewValidationError("name", "entity name must not be empty")
	}
	if strings.TrimSpace(e.Label) == "" {
		return gerrors.NewValidationError("label", "entity label must not be empty")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return gerrors.NewValidationError("confidence", "confidence must be within [0,1]")
	}
	return nil
}

func validateRelation(r Relation) error {
	if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "" {
		return gerrors.NewValidationError("relation", "relation endpoints must not be empty")
	}
	if strings.TrimSpace(r.Relation) == "" {
		return gerrors.NewValidationError("relation", "relation type must not be empty")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return gerrors.NewValidationError("confidence", "confidence must be within [0,1]")
	}
	return nil
}

func parsePayload(response string) (*payload, error) {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")

	if start == -1 || end == -1 || end < start {
		return nil, gerrors.NewValidationError("response", "no JSON object found")
	}

	var p payload
	if err := json.Unmarshal([]byte(response[start:end+1]), &p); err != nil {
		return nil, gerrors.NewValidationError("response", "malformed extraction payload: "+err.Error())
	}

	return &p, nil
}
