// Package inmem provides an in-memory implementation of the durable
// execution engine for tests, development, and single-process deployments.
//
// Step results are memoized per (executionID, step name) for the lifetime of
// the engine, so re-submitting an execution with the same ID replays it:
// steps that completed before short-circuit to their cached results without
// running their thunks. There is no durability across process restarts.
package inmem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"goa.design/flowrun/runtime/flow/engine"
)

type (
	// Options configures the in-memory engine.
	Options struct {
		// MaxConcurrent bounds the number of async steps running at once
		// across the engine. Zero or negative means unbounded.
		MaxConcurrent int
	}

	eng struct {
		mu        sync.Mutex
		workflows map[string]engine.WorkflowDefinition
		steps     map[string]*stepCache // keyed by execution ID
		sem       chan struct{}
		closed    bool
	}

	// stepCache memoizes step results for one execution and serializes
	// concurrent invocations of the same step name.
	stepCache struct {
		mu       sync.Mutex
		results  map[string]json.RawMessage
		inflight map[string]*inflightStep
	}

	inflightStep struct {
		done   chan struct{}
		result json.RawMessage
		err    error
	}

	wfCtx struct {
		ctx   context.Context
		id    string
		eng   *eng
		cache *stepCache
	}

	future struct {
		done   chan struct{}
		result json.RawMessage
		err    error
	}

	handle struct {
		done   chan struct{}
		cancel context.CancelFunc

		mu     sync.Mutex
		result json.RawMessage
		err    error
	}
)

// New returns a new in-memory Engine.
func New(opts Options) engine.Engine {
	e := &eng{
		workflows: make(map[string]engine.WorkflowDefinition),
		steps:     make(map[string]*stepCache),
	}
	if opts.MaxConcurrent > 0 {
		e.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return e
}

// RegisterWorkflow implements engine.Engine.
func (e *eng) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("invalid workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

// StartExecution implements engine.Engine. The handler runs on its own
// goroutine; the returned handle's Wait blocks until it finishes.
func (e *eng) StartExecution(ctx context.Context, req engine.StartRequest) (engine.Handle, error) {
	if req.ID == "" {
		return nil, errors.New("execution id is required")
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("engine is closed")
	}
	def, ok := e.workflows[req.Workflow]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("workflow %q not registered", req.Workflow)
	}
	cache, ok := e.steps[req.ID]
	if !ok {
		cache = &stepCache{
			results:  make(map[string]json.RawMessage),
			inflight: make(map[string]*inflightStep),
		}
		e.steps[req.ID] = cache
	}
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	if req.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.RunTimeout)
	}

	h := &handle{done: make(chan struct{}), cancel: cancel}
	wctx := &wfCtx{ctx: runCtx, id: req.ID, eng: e, cache: cache}

	go func() {
		defer close(h.done)
		defer cancel()
		res, err := def.Handler(wctx, req.Input)
		h.mu.Lock()
		h.result = res
		h.err = err
		h.mu.Unlock()
	}()
	return h, nil
}

// Close implements engine.Engine.
func (e *eng) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (w *wfCtx) Context() context.Context { return w.ctx }

func (w *wfCtx) ExecutionID() string { return w.id }

func (w *wfCtx) Now() time.Time { return time.Now().UTC() }

// Step implements the durable step primitive: a cached result returns
// immediately; otherwise the thunk runs and its result is cached on success.
// Concurrent invocations of the same step name share one run.
func (w *wfCtx) Step(name string, fn engine.StepFunc) (json.RawMessage, error) {
	return w.cache.run(w.ctx, w.eng.sem, name, fn)
}

// StepAsync implements the asynchronous durable step primitive.
func (w *wfCtx) StepAsync(name string, fn engine.StepFunc) engine.Future {
	f := &future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.result, f.err = w.cache.run(w.ctx, w.eng.sem, name, fn)
	}()
	return f
}

// run resolves a step: cached result, join of an in-flight run, or a fresh
// run. Only successful results are memoized so failed steps can be retried
// by a later replay.
func (c *stepCache) run(ctx context.Context, sem chan struct{}, name string, fn engine.StepFunc) (json.RawMessage, error) {
	c.mu.Lock()
	if res, ok := c.results[name]; ok {
		c.mu.Unlock()
		return res, nil
	}
	if fl, ok := c.inflight[name]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.result, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &inflightStep{done: make(chan struct{})}
	c.inflight[name] = fl
	c.mu.Unlock()

	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			fl.err = ctx.Err()
			c.finish(name, fl)
			return nil, fl.err
		}
	}
	if err := ctx.Err(); err != nil {
		fl.err = err
		c.finish(name, fl)
		return nil, err
	}

	fl.result, fl.err = fn(ctx)
	c.finish(name, fl)
	return fl.result, fl.err
}

func (c *stepCache) finish(name string, fl *inflightStep) {
	c.mu.Lock()
	if fl.err == nil {
		c.results[name] = fl.result
	}
	delete(c.inflight, name)
	c.mu.Unlock()
	close(fl.done)
}

func (f *future) Get(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *future) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (h *handle) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *handle) Cancel(_ context.Context) error {
	h.cancel()
	return nil
}
