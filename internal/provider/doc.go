// Package provider defines the embedding provider abstraction: the Client
// interface workers call to generate embeddings, the ProviderError
// classification that drives retry and cooldown decisions, and the Router
// that maps open-ended provider identifiers to registered clients.
package provider
