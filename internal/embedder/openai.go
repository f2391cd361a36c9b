package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openaiEmbedder struct {
	client *openai.Client
	model  string
}

func newOpenAI(apiKey, baseURL, model string) *openaiEmbedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &openaiEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (o *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}

	return resp.Data[0].Embedding, nil
}
