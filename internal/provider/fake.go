package provider

import (
	"context"
	"sync"

	"github.com/docuvec/embedq/internal/domain"
)

// FakeClient is a scriptable Client for tests and local development. Each
// Embed call consumes the next scripted response; when the script is
// exhausted the default response is returned.
type FakeClient struct {
	mu       sync.Mutex
	name     string
	script   []FakeResponse
	fallback FakeResponse
	calls    int
}

// FakeResponse is one scripted Embed outcome.
type FakeResponse struct {
	Result *Result
	Err    error
}

// NewFakeClient creates a FakeClient registered under the given name that
// succeeds with a small fixed embedding unless scripted otherwise.
func NewFakeClient(name string) *FakeClient {
	return &FakeClient{
		name: name,
		fallback: FakeResponse{
			Result: &Result{
				Vector:     []float32{0.1, 0.2, 0.3},
				ActualCost: 1,
				Model:      "fake-embedding-001",
			},
		},
	}
}

// Script appends responses to be returned by subsequent Embed calls, in
// order.
func (f *FakeClient) Script(responses ...FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, responses...)
}

// SetFallback replaces the response returned once the script is exhausted.
func (f *FakeClient) SetFallback(resp FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = resp
}

// Calls reports how many Embed calls the client has served.
func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Name implements Client.Name.
func (f *FakeClient) Name() string {
	return f.name
}

// Embed implements Client.Embed.
func (f *FakeClient) Embed(ctx context.Context, item *domain.QueueItem) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(f.name, KindTransient, 0, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	resp := f.fallback
	if len(f.script) > 0 {
		resp = f.script[0]
		f.script = f.script[1:]
	}
	return resp.Result, resp.Err
}
