package database_test

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// countingPool is an instrumented Pool that tracks how many transactions
// were begun and how many were ended.
type countingPool struct {
	mu        sync.Mutex
	begun     int
	committed int
	rolled    int
	closed    int
	lastOpts  pgx.TxOptions
	beginErr  error
	commitErr error
	execSQL   []string
}

func (p *countingPool) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.begun++
	p.lastOpts = opts
	return &countingTx{pool: p}, nil
}

func (p *countingPool) Ping(context.Context) error { return nil }

func (p *countingPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

func (p *countingPool) released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed + p.rolled
}

// countingTx implements the parts of pgx.Tx the provider touches. Calls to
// any other method panic through the nil embedded interface.
type countingTx struct {
	pgx.Tx
	pool *countingPool
	done bool
}

func (t *countingTx) Commit(context.Context) error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.pool.committed++
	return t.pool.commitErr
}

func (t *countingTx) Rollback(context.Context) error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.pool.rolled++
	return nil
}

func (t *countingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	t.pool.execSQL = append(t.pool.execSQL, sql)
	return pgconn.NewCommandTag("SELECT 1"), nil
}
