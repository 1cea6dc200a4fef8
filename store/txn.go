// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package store

import (
	"context"
	"sort"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/catalogdb/common/kvstore"
	apierrors "github.com/cubefs/catalogdb/errors"
)

type txnBatch struct {
	s     *Store
	batch kvstore.WriteBatch
}

// Txn collects the writes of one catalog mutation, possibly across several stores.
// In-memory changes made before commit register an undo function that runs in
// reverse order on rollback. Storage side effects that must not run for an aborted
// mutation register a commit function that runs after every batch is written.
type Txn struct {
	batches []*txnBatch
	undo    []func()
	commits []func(ctx context.Context)
	done    bool
}

func NewTxn() *Txn {
	return &Txn{}
}

func (t *Txn) batch(s *Store) kvstore.WriteBatch {
	for _, b := range t.batches {
		if b.s == s {
			return b.batch
		}
	}
	b := &txnBatch{s: s, batch: s.kvStore.NewWriteBatch()}
	t.batches = append(t.batches, b)
	return b.batch
}

func (t *Txn) OnRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *Txn) OnCommit(fn func(ctx context.Context)) {
	t.commits = append(t.commits, fn)
}

// Count returns the number of pending writes.
func (t *Txn) Count() (n int) {
	for _, b := range t.batches {
		n += b.batch.Count()
	}
	return
}

// Commit writes the per-database batches before the system batch. A failed write
// rolls the transaction back and returns an error matching ErrTransactionFailure.
func (t *Txn) Commit(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	if t.done {
		return apierrors.ErrTransactionAlreadyEnded
	}

	sort.SliceStable(t.batches, func(i, j int) bool {
		return !t.batches[i].s.system && t.batches[j].s.system
	})
	for _, b := range t.batches {
		if b.batch.Count() == 0 {
			continue
		}
		if err := b.s.kvStore.Write(ctx, b.batch); err != nil {
			span.Errorf("write catalog store[%s] failed: %s", b.s.path, err)
			t.Rollback(ctx)
			return apierrors.TxnFailed(err)
		}
	}
	t.close()

	for _, fn := range t.commits {
		fn(ctx)
	}
	t.commits = nil
	return nil
}

// Rollback drops the pending writes and reverts the registered in-memory changes.
func (t *Txn) Rollback(ctx context.Context) {
	if t.done {
		return
	}
	span := trace.SpanFromContextSafe(ctx)
	if len(t.undo) > 0 {
		span.Warnf("rollback catalog transaction, %d in-memory changes reverted", len(t.undo))
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.close()
	t.commits = nil
}

func (t *Txn) close() {
	for _, b := range t.batches {
		b.batch.Close()
	}
	t.batches = nil
	t.undo = nil
	t.done = true
}
