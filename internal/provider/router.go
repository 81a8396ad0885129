package provider

import (
	"fmt"
	"sync"
)

// Router maps provider identifiers to registered clients. Identifiers are
// open-ended strings: any client can be registered under any name, and
// items referencing an unregistered provider fail with ErrUnknownProvider
// rather than being silently rerouted.
type Router struct {
	mu       sync.RWMutex
	clients  map[string]Client
	fallback string
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		clients: make(map[string]Client),
	}
}

// Register adds a client under its own name. Registering the same name
// twice replaces the earlier client.
func (r *Router) Register(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Name()] = client
}

// SetFallback names the provider used for items whose provider has no
// registered client. An empty name disables the fallback.
func (r *Router) SetFallback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = name
}

// Resolve returns the client for the given provider identifier, falling
// back to the configured default when no direct registration exists.
func (r *Router) Resolve(provider string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if client, ok := r.clients[provider]; ok {
		return client, nil
	}
	if r.fallback != "" {
		if client, ok := r.clients[r.fallback]; ok {
			return client, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

// Providers returns the registered provider identifiers.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
