package core

import (
	"context"
	"sync"
)

type (
	txHooksKey   struct{}
	savepointKey struct{}
)

// TxHooks collects the callbacks to run once a transaction commits.
type TxHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithTxHooks returns a ctx carrying a fresh TxHooks. Transactors call it when opening a transaction.
func WithTxHooks(ctx context.Context) (context.Context, *TxHooks) {
	h := new(TxHooks)
	return context.WithValue(ctx, txHooksKey{}, h), h
}

// Run calls the collected callbacks with `ctx`, which must not carry the committed transaction.
func (h *TxHooks) Run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ctx)
	}
}

// AfterCommit defers fn until the transaction carried by ctx commits.
// Outside a transaction fn runs right away.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if h, ok := ctx.Value(txHooksKey{}).(*TxHooks); ok {
		h.mu.Lock()
		h.fns = append(h.fns, fn)
		h.mu.Unlock()
		return
	}
	fn(ctx)
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txHooksKey{}).(*TxHooks)
	return ok
}

// Savepointer runs fn inside a savepoint of the open transaction: when fn fails, its
// writes are undone and the transaction stays usable.
type Savepointer func(ctx context.Context, fn func(ctx context.Context) error) error

// WithSavepointer returns a ctx carrying sp. Transactors call it when opening a transaction.
func WithSavepointer(ctx context.Context, sp Savepointer) context.Context {
	return context.WithValue(ctx, savepointKey{}, sp)
}

// BestEffort runs fn so that its failure cannot abort the transaction carried by ctx.
// The error is still returned for the caller to log.
func BestEffort(ctx context.Context, fn func(ctx context.Context) error) error {
	if sp, ok := ctx.Value(savepointKey{}).(Savepointer); ok {
		return sp(ctx, fn)
	}
	return fn(ctx)
}
