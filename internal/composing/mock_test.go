package composing

import (
	"context"
	"sync"

	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/types"
)

// recordingExecutor wraps an executor and counts method invocations for
// assertions about which tier a protocol touched.
type recordingExecutor struct {
	inner executor.Executor

	mu     sync.Mutex
	counts map[string]int
}

func record(inner executor.Executor) *recordingExecutor {
	return &recordingExecutor{inner: inner, counts: map[string]int{}}
}

func (r *recordingExecutor) bump(method string) {
	r.mu.Lock()
	r.counts[method]++
	r.mu.Unlock()
}

func (r *recordingExecutor) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[method]
}

func (r *recordingExecutor) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

func (r *recordingExecutor) CreateValue(ctx context.Context, value any, t types.Type) (executor.Value, error) {
	r.bump("CreateValue")
	return r.inner.CreateValue(ctx, value, t)
}

func (r *recordingExecutor) CreateCall(ctx context.Context, fn executor.Value, arg executor.Value) (executor.Value, error) {
	r.bump("CreateCall")
	return r.inner.CreateCall(ctx, fn, arg)
}

func (r *recordingExecutor) CreateTuple(ctx context.Context, elements []executor.TupleElement) (executor.Value, error) {
	r.bump("CreateTuple")
	return r.inner.CreateTuple(ctx, elements)
}

func (r *recordingExecutor) CreateSelection(ctx context.Context, source executor.Value, sel executor.Selector) (executor.Value, error) {
	r.bump("CreateSelection")
	return r.inner.CreateSelection(ctx, source, sel)
}

func (r *recordingExecutor) Close() error {
	r.bump("Close")
	return r.inner.Close()
}

// brokenCallExecutor delegates everything except CreateCall, which always
// fails. It makes the cardinality probe fail deterministically.
type brokenCallExecutor struct {
	inner executor.Executor
	err   error
}

func (b *brokenCallExecutor) CreateValue(ctx context.Context, value any, t types.Type) (executor.Value, error) {
	return b.inner.CreateValue(ctx, value, t)
}

func (b *brokenCallExecutor) CreateCall(ctx context.Context, fn executor.Value, arg executor.Value) (executor.Value, error) {
	return nil, b.err
}

func (b *brokenCallExecutor) CreateTuple(ctx context.Context, elements []executor.TupleElement) (executor.Value, error) {
	return b.inner.CreateTuple(ctx, elements)
}

func (b *brokenCallExecutor) CreateSelection(ctx context.Context, source executor.Value, sel executor.Selector) (executor.Value, error) {
	return b.inner.CreateSelection(ctx, source, sel)
}

func (b *brokenCallExecutor) Close() error { return b.inner.Close() }
