package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"museum-api-verifier/internal/contract"
	"museum-api-verifier/internal/envelope"
	"museum-api-verifier/internal/matrix"
	"museum-api-verifier/internal/resolver"
	"museum-api-verifier/internal/transport"
	"museum-api-verifier/internal/types"
)

// Phase is a step of the run state machine
type Phase string

const (
	PhaseInit                 Phase = "init"
	PhaseResolvePreconditions Phase = "resolve-preconditions"
	PhaseExecuteMatrix        Phase = "execute-matrix"
	PhaseAggregate            Phase = "aggregate"
	PhaseDone                 Phase = "done"
)

// maxBodyInReport caps response bodies kept for failed cases
const maxBodyInReport = 4096

// Config holds configuration for test execution
type Config struct {
	MaxWorkers int
	APIKey     string
	// Detailed keeps the response body of failed cases.
	Detailed bool
}

// Recorder receives outcomes and request latencies. metrics.Recorder
// implements it.
type Recorder interface {
	Observe(result types.VerificationResult)
	ObserveRequest(family types.Family, latency time.Duration)
}

// Executor runs the verification matrix
type Executor struct {
	config   Config
	adapter  transport.Adapter
	resolver *resolver.Resolver
	logger   *zap.Logger
	recorder Recorder

	mu    sync.RWMutex
	phase Phase
}

// New creates an executor. logger and recorder may be nil.
func New(config Config, adapter transport.Adapter, res *resolver.Resolver, logger *zap.Logger, recorder Recorder) *Executor {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if res == nil {
		res = resolver.New(adapter, config.APIKey, logger)
	}
	return &Executor{
		config:   config,
		adapter:  adapter,
		resolver: res,
		logger:   logger,
		recorder: recorder,
		phase:    PhaseInit,
	}
}

// Phase returns the current phase of the run
func (e *Executor) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

func (e *Executor) enter(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	e.logger.Info("phase", zap.String("phase", string(p)))
}

// Run executes every case and returns one result per case, in matrix order.
// Cases whose identifier could not be resolved are never started.
func (e *Executor) Run(ctx context.Context, cases []matrix.Case) []types.VerificationResult {
	e.enter(PhaseInit)
	results := make([]types.VerificationResult, len(cases))

	e.enter(PhaseResolvePreconditions)
	ids := e.resolvePreconditions(ctx, cases)

	e.enter(PhaseExecuteMatrix)
	var g errgroup.Group
	g.SetLimit(e.config.MaxWorkers)

	for i, c := range cases {
		var id types.DynamicIdentifier
		if c.Identifier != nil {
			r := ids[c.Identifier.Name]
			if r.err != nil {
				results[i] = e.skipped(c, r.err)
				continue
			}
			id = r.id
		}
		g.Go(func() error {
			results[i] = e.runCase(ctx, c, id)
			return nil
		})
	}
	_ = g.Wait()

	e.enter(PhaseAggregate)
	for _, r := range results {
		if e.recorder != nil {
			e.recorder.Observe(r)
		}
	}

	e.enter(PhaseDone)
	return results
}

type resolution struct {
	id  types.DynamicIdentifier
	err error
}

// resolvePreconditions resolves every distinct identifier source up front so
// no case starts before its dependency has completed or failed.
func (e *Executor) resolvePreconditions(ctx context.Context, cases []matrix.Case) map[string]resolution {
	sources := matrix.Sources(cases)
	out := make(map[string]resolution, len(sources))

	var mu sync.Mutex
	var g errgroup.Group
	for _, src := range sources {
		g.Go(func() error {
			id, err := e.resolver.Resolve(ctx, *src)
			mu.Lock()
			out[src.Name] = resolution{id: id, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func newResult(c matrix.Case) types.VerificationResult {
	return types.VerificationResult{
		Case:       c.Name,
		Family:     c.Endpoint.Family,
		Path:       c.Endpoint.PathTemplate,
		Params:     c.Params.Merge(c.Endpoint.BaseParams).String(),
		Credential: c.Credential,
	}
}

func (e *Executor) skipped(c matrix.Case, err error) types.VerificationResult {
	result := newResult(c)
	result.Outcome = types.OutcomeSkippedPrecondition
	result.Error = err.Error()

	var perr *resolver.PreconditionError
	if errors.As(err, &perr) {
		result.Notes = []string{"precondition unmet: " + perr.Reason}
	}
	e.logger.Warn("case skipped",
		zap.String("case", c.Name),
		zap.String("family", string(c.Endpoint.Family)),
		zap.String("outcome", string(result.Outcome)),
		zap.Error(err),
	)
	return result
}

func (e *Executor) runCase(ctx context.Context, c matrix.Case, id types.DynamicIdentifier) (result types.VerificationResult) {
	start := time.Now()
	result = newResult(c)
	defer func() {
		result.Duration = time.Since(start)
		e.logResult(result)
	}()

	path := make(map[string]string, len(c.Path)+1)
	for k, v := range c.Path {
		path[k] = v
	}
	if c.Identifier != nil {
		path[c.Endpoint.Placeholder] = id.Value
	}

	primary, err := e.fetch(ctx, c, path, c.Params, &result)
	if err != nil {
		return result
	}
	in := contract.Input{Envelope: primary, Params: c.Params, Identifier: id.Value}

	if c.Peer != nil {
		peerParams := c.Peer.Merge(c.Params)
		var peerResult types.VerificationResult
		peer, err := e.fetch(ctx, c, path, peerParams, &peerResult)
		if err != nil {
			result.Outcome = peerResult.Outcome
			result.Error = "peer request: " + peerResult.Error
			return result
		}
		in.Peer = peer
		in.PeerParams = peerParams
	}

	result.Outcome, result.Findings, result.Notes = contract.Classify(contract.Evaluate(in, c.Rules))
	if result.Outcome == types.OutcomeFail && e.config.Detailed {
		result.Body = truncate(string(primary.Body), maxBodyInReport)
	}
	return result
}

// fetch issues one request for the case. On failure it records the outcome
// on result and returns an error.
func (e *Executor) fetch(ctx context.Context, c matrix.Case, path map[string]string, params types.ParameterSet, result *types.VerificationResult) (*envelope.Envelope, error) {
	req, err := transport.BuildRequest(c.Endpoint, path, params, c.Credential, e.config.APIKey)
	if err != nil {
		result.Outcome = types.OutcomeFail
		result.Error = fmt.Sprintf("failed to build request: %v", err)
		return nil, err
	}
	result.Path = req.Path

	resp, err := e.adapter.Get(ctx, req)
	if err != nil {
		result.Outcome = types.OutcomeInfrastructureError
		result.Error = err.Error()
		var terr *transport.Error
		if errors.As(err, &terr) && terr.Timeout() {
			result.Error = fmt.Sprintf("deadline exceeded (%s bound): %v", terr.Deadline, err)
		}
		return nil, err
	}
	if e.recorder != nil {
		e.recorder.ObserveRequest(c.Endpoint.Family, resp.Latency)
	}

	result.StatusCode = resp.StatusCode
	return envelope.Parse(resp.StatusCode, resp.Header, resp.Body, resp.Latency), nil
}

func (e *Executor) logResult(r types.VerificationResult) {
	fields := []zap.Field{
		zap.String("case", r.Case),
		zap.String("family", string(r.Family)),
		zap.String("path", r.Path),
		zap.String("params", r.Params),
		zap.Int("status", r.StatusCode),
		zap.String("outcome", string(r.Outcome)),
		zap.Duration("duration", r.Duration),
	}
	switch r.Outcome {
	case types.OutcomeFail:
		violations := make([]string, 0, len(r.Findings))
		for _, f := range r.Findings {
			violations = append(violations, f.Rule+": "+f.Detail)
		}
		fields = append(fields, zap.Strings("violations", violations))
		if r.Error != "" {
			fields = append(fields, zap.String("error", r.Error))
		}
		e.logger.Warn("case failed", fields...)
	case types.OutcomeInfrastructureError:
		e.logger.Error("case could not reach the API", append(fields, zap.String("error", r.Error))...)
	default:
		e.logger.Info("case finished", fields...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
