package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/llm"
	gerrors "github.com/bowerhall/graphmem/pkg/errors"
)

const judgePrompt = `You are an entity resolution judge. Decide whether these two entries from a personal knowledge graph refer to the same real-world entity.

Entity A:
%s

Entity B:
%s

Consider name variants, nicknames, abbreviations, and the surrounding properties. Two different people can share a name; do not match on name alone when the properties contradict each other.

Return a JSON object (JSON only, no explanation):
{"match": true/false, "confidence": 0.0-1.0, "rationale": "one short sentence"}`

type Judgment struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// EntityDescription is the judge's view of one entity, either a candidate
// from extraction or a persisted node.
type EntityDescription struct {
	Name       string
	Label      string
	Properties map[string]string
}

type Judge interface {
	Judge(ctx context.Context, a, b EntityDescription) (*Judgment, error)
}

func describeNode(n *graph.Node) EntityDescription {
	return EntityDescription{Name: n.Name, Label: n.Label, Properties: n.Properties}
}

func (d EntityDescription) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nlabel: %s\n", d.Name, d.Label)
	for k, v := range d.Properties {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return b.String()
}

// LLMJudge adjudicates blocked pairs through the reasoning provider.
type LLMJudge struct {
	llm llm.LLM
}

func NewLLMJudge(provider llm.LLM) *LLMJudge {
	return &LLMJudge{llm: provider}
}

func (j *LLMJudge) Judge(ctx context.Context, a, b EntityDescription) (*Judgment, error) {
	prompt := fmt.Sprintf(judgePrompt, a.render(), b.render())

	response, err := j.llm.Chat(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, err
	}

	return parseJudgment(response)
}

func parseJudgment(response string) (*Judgment, error) {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")

	if start == -1 || end == -1 || end < start {
		return nil, gerrors.NewValidationError("response", "no JSON object found")
	}

	var j Judgment
	if err := json.Unmarshal([]byte(response[start:end+1]), &j); err != nil {
		return nil, gerrors.NewValidationError("response", "malformed judgment: "+err.Error())
	}

	return &j, nil
}
