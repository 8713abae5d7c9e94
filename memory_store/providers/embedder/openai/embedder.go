package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/maxfong/my-mem-mcp/memory_store/providers/embedder"
)

type openAIEmbedder struct {
	options embedder.Options
	client  *openai.Client
}

// Embed requests a vector for text from the configured endpoint. Any
// transport or model failure is reported as ErrProviderUnavailable.
func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.options.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedder.ErrProviderUnavailable, err)
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", embedder.ErrProviderUnavailable)
	}

	return rsp.Data[0].Embedding, nil
}

func (e *openAIEmbedder) Health(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}

// NewEmbedder creates an embedder backed by any OpenAI-compatible endpoint
// (OpenAI itself, or a local model server such as Ollama's /v1 API).
func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	config := openai.DefaultConfig(options.ApiKey)
	if len(options.Location) > 0 {
		config.BaseURL = options.Location
	}

	e := &openAIEmbedder{
		options: options,
		client:  openai.NewClientWithConfig(config),
	}

	return e
}
