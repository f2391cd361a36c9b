package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	gerrors "github.com/bowerhall/graphmem/pkg/errors"
)

type openaiClient struct {
	client *openai.Client
	model  string
}

func newOpenAI(apiKey, baseURL, model string) LLM {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &openaiClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (o *openaiClient) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	oaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if systemPrompt != "" {
		oaiMessages = append(oaiMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		oaiMessages = append(oaiMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: oaiMessages,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := range maxRetries {
		resp, err = o.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return "", gerrors.NewProviderError("openai", "chat failed", false, err)
		}
		if attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if err != nil {
		return "", gerrors.NewProviderError("openai", "chat failed after retries", true, err)
	}

	if len(resp.Choices) == 0 {
		return "", gerrors.NewProviderError("openai", "empty completion", false, nil)
	}

	return resp.Choices[0].Message.Content, nil
}
