// Package resolver discovers identifiers that dependent cases need, such as
// a userset id, by reading the first element of a listing. Each source is
// fetched at most once per run.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"museum-api-verifier/internal/envelope"
	"museum-api-verifier/internal/transport"
	"museum-api-verifier/internal/types"
)

// PreconditionError means an identifier could not be resolved. Every case
// depending on the source is skipped rather than run with a placeholder.
type PreconditionError struct {
	Source string
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precondition unmet for %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("precondition unmet for %s: %s", e.Source, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

type entry struct {
	once sync.Once
	id   types.DynamicIdentifier
	err  error
}

// Resolver memoizes identifiers for the lifetime of one run
type Resolver struct {
	adapter transport.Adapter
	apiKey  string
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a resolver that authenticates with apiKey
func New(adapter transport.Adapter, apiKey string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		adapter: adapter,
		apiKey:  apiKey,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Resolve returns the identifier for src, fetching it on first use.
// Concurrent callers for the same source share a single request, and a
// failure is memoized as well so dependents fail fast.
func (r *Resolver) Resolve(ctx context.Context, src types.IdentifierSource) (types.DynamicIdentifier, error) {
	r.mu.Lock()
	e, ok := r.entries[src.Name]
	if !ok {
		e = &entry{}
		r.entries[src.Name] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.id, e.err = r.fetch(ctx, src)
		if e.err != nil {
			r.logger.Warn("identifier resolution failed", zap.String("source", src.Name), zap.Error(e.err))
			return
		}
		r.logger.Info("identifier resolved", zap.String("source", src.Name), zap.String("id", e.id.Value))
	})
	return e.id, e.err
}

func (r *Resolver) fetch(ctx context.Context, src types.IdentifierSource) (types.DynamicIdentifier, error) {
	fail := func(reason string, err error) (types.DynamicIdentifier, error) {
		return types.DynamicIdentifier{}, &PreconditionError{Source: src.Name, Reason: reason, Err: err}
	}

	req, err := transport.BuildRequest(src.Endpoint, src.Path, nil, types.CredentialValid, r.apiKey)
	if err != nil {
		return fail("cannot build listing request", err)
	}

	resp, err := r.adapter.Get(ctx, req)
	if err != nil {
		return fail("listing request failed", err)
	}

	env := envelope.Parse(resp.StatusCode, resp.Header, resp.Body, resp.Latency)
	if env.Status != http.StatusOK {
		return fail(fmt.Sprintf("listing returned status %d", env.Status), nil)
	}
	if !env.Valid() {
		return fail("listing body is not valid JSON", nil)
	}

	list := env.Get(src.ListPath)
	if !list.IsArray() {
		return fail(fmt.Sprintf("listing array %s is absent", src.ListPath), nil)
	}
	items := list.Array()
	if len(items) == 0 {
		return fail(fmt.Sprintf("listing array %s is empty", src.ListPath), nil)
	}

	id := items[0].Get(src.Field)
	if !id.Present() || id.String() == "" {
		return fail(fmt.Sprintf("first element of %s has no %s", src.ListPath, src.Field), nil)
	}

	return types.DynamicIdentifier{Source: src.Name, Value: id.String()}, nil
}
