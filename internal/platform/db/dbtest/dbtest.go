// Package dbtest provides an in-memory db.TxManager for service tests.
package dbtest

import (
	"context"
	"sync"
)

// Snapshotter is implemented by in-memory repositories. Snapshot captures
// the current state and returns a function that restores it.
type Snapshotter interface {
	Snapshot() (restore func())
}

type txKey struct{}

// TxManager serializes transactions and restores every registered store
// when the function fails.
type TxManager struct {
	mu        sync.Mutex
	stores    []Snapshotter
	Commits   int
	Rollbacks int
}

func NewTxManager(stores ...Snapshotter) *TxManager {
	return &TxManager{stores: stores}
}

// Track registers additional stores.
func (m *TxManager) Track(stores ...Snapshotter) {
	m.stores = append(m.stores, stores...)
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restores := make([]func(), 0, len(m.stores))
	for _, s := range m.stores {
		restores = append(restores, s.Snapshot())
	}
	defer func() {
		p := recover()
		if err != nil || p != nil {
			for _, r := range restores {
				r()
			}
			m.Rollbacks++
		} else {
			m.Commits++
		}
		if p != nil {
			panic(p)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

// InTx reports whether ctx was produced by WithinTx.
func InTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}
