package provider

import (
	"context"

	"github.com/docuvec/embedq/internal/domain"
)

// Result is the outcome of a successful embedding call.
type Result struct {
	// Vector is the embedding produced for the item's content.
	Vector []float32

	// ActualCost is the token count the provider billed for the call.
	ActualCost int

	// Model identifies the model that produced the embedding.
	Model string
}

// Client generates embeddings for queue items. Implementations classify
// every failure as a *ProviderError so the worker can decide between
// retry, cooldown, and dead-letter without provider-specific knowledge.
type Client interface {
	// Embed generates an embedding for the given item's content.
	Embed(ctx context.Context, item *domain.QueueItem) (*Result, error)

	// Name returns the provider identifier this client serves.
	Name() string
}
