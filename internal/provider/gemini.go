package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuvec/embedq/internal/config"
	"github.com/docuvec/embedq/internal/domain"
	"google.golang.org/genai"
)

// metadataTextKey is the item metadata key carrying the content to embed.
const metadataTextKey = "text"

// ErrNoContent indicates an item with no embeddable content in its
// metadata. This is a terminal condition: retrying cannot produce content.
var ErrNoContent = errors.New("item metadata carries no content to embed")

// GeminiClient implements the Client interface using Google's Gemini API.
type GeminiClient struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the embedding model identifier to use
	model string

	// name is the provider identifier this client is registered under
	name string
}

// Ensure GeminiClient implements Client.
var _ Client = (*GeminiClient)(nil)

// NewGeminiClient creates a new GeminiClient with the provided dependencies.
func NewGeminiClient(ctx context.Context, logger *slog.Logger, cfg config.ProviderConfig) (*GeminiClient, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if cfg.EmbeddingModel == "" {
		return nil, errors.New("embedding model cannot be empty")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		logger: logger,
		client: client,
		model:  cfg.EmbeddingModel,
		name:   "gemini",
	}, nil
}

// Name implements Client.Name.
func (g *GeminiClient) Name() string {
	return g.name
}

// Embed implements Client.Embed. It sends the item's metadata text to the
// Gemini embedding endpoint and classifies every failure so the caller can
// choose between retry, cooldown, and dead-letter.
func (g *GeminiClient) Embed(ctx context.Context, item *domain.QueueItem) (*Result, error) {
	text := item.Metadata[metadataTextKey]
	if text == "" {
		return nil, NewProviderError(g.name, KindTerminal, 0, ErrNoContent)
	}

	g.logger.DebugContext(ctx, "calling Gemini embedding API",
		"item_id", item.ID,
		"model", g.model,
		"content_length", len(text))

	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), nil)
	if err != nil {
		return nil, g.classify(ctx, item, err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, NewProviderError(g.name, KindTransient, 0,
			errors.New("empty embedding response"))
	}

	embedding := resp.Embeddings[0]
	cost := item.EstimatedCost
	if embedding.Statistics != nil && embedding.Statistics.TokenCount > 0 {
		cost = int(embedding.Statistics.TokenCount)
	}

	g.logger.DebugContext(ctx, "Gemini embedding call successful",
		"item_id", item.ID,
		"dimensions", len(embedding.Values),
		"actual_cost", cost)

	return &Result{
		Vector:     embedding.Values,
		ActualCost: cost,
		Model:      g.model,
	}, nil
}

// classify maps a Gemini API failure to a ProviderError kind: 429 opens a
// cooldown, server errors and timeouts are retried, auth and validation
// failures are terminal.
func (g *GeminiClient) classify(ctx context.Context, item *domain.QueueItem, err error) *ProviderError {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			g.logger.WarnContext(ctx, "Gemini rate limit hit",
				"item_id", item.ID,
				"status", apiErr.Status)
			return NewProviderError(g.name, KindRateLimited, retryAfterFromDetails(apiErr), err)
		case apiErr.Code >= 500:
			return NewProviderError(g.name, KindTransient, 0, err)
		case apiErr.Code == 408:
			return NewProviderError(g.name, KindTransient, 0, err)
		case apiErr.Code == 400 || apiErr.Code == 401 || apiErr.Code == 403 || apiErr.Code == 404:
			g.logger.ErrorContext(ctx, "Gemini request rejected",
				"item_id", item.ID,
				"code", apiErr.Code,
				"status", apiErr.Status)
			return NewProviderError(g.name, KindTerminal, 0, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProviderError(g.name, KindTransient, 0, err)
	}

	// Unknown failures are retried rather than dead-lettered.
	return NewProviderError(g.name, KindTransient, 0, err)
}

// retryAfterFromDetails digs the RetryInfo delay out of a 429 response's
// error details, or returns zero when the API gave no hint.
func retryAfterFromDetails(apiErr *genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		if t, ok := detail["@type"].(string); !ok || t != "type.googleapis.com/google.rpc.RetryInfo" {
			continue
		}
		delay, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(delay); err == nil && d > 0 {
			return d
		}
	}
	return 0
}
