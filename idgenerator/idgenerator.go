// Copyright 2022 The CubeFS Authors.
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

package idgenerator

import (
	"context"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/catalogdb/store"
)

const (
	ScopeUser      = "user"
	ScopeDatabase  = "database"
	ScopeTable     = "table"
	ScopeDict      = "dictionary"
	ScopeDashboard = "dashboard"
	ScopeLink      = "link"
)

var (
	MaxCount = 1000000

	ErrInvalidCount = errors.New("request count is invalid")
)

// IDGenerator hands out monotonic ids per scope. The new high water mark is
// written inside the caller's transaction and restored in memory on rollback.
type IDGenerator struct {
	scopeItems map[string]int32

	storage *storage
	lock    sync.Mutex
}

func NewIDGenerator(ctx context.Context, s *store.Store) (*IDGenerator, error) {
	span := trace.SpanFromContextSafe(ctx)

	g := &IDGenerator{storage: &storage{store: s}}
	items, err := g.storage.Load(ctx)
	if err != nil {
		span.Errorf("load id generator failed: %s", err)
		return nil, err
	}
	g.scopeItems = items
	return g, nil
}

// Alloc reserves count ids of the scope, they are base+1 ... new.
func (g *IDGenerator) Alloc(ctx context.Context, txn *store.Txn, name string, count int) (base, new int32, err error) {
	span := trace.SpanFromContextSafe(ctx)
	if count <= 0 {
		return 0, 0, ErrInvalidCount
	}
	if count > MaxCount {
		count = MaxCount
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	base = g.scopeItems[name]
	new = base + int32(count)
	g.scopeItems[name] = new
	g.storage.Put(txn, name, new)
	txn.OnRollback(func() {
		g.lock.Lock()
		if g.scopeItems[name] == new {
			g.scopeItems[name] = base
		}
		g.lock.Unlock()
	})

	span.Debugf("alloc success, name %s, base %d, new %d", name, base, new)
	return
}

// AllocOne is Alloc with a count of one.
func (g *IDGenerator) AllocOne(ctx context.Context, txn *store.Txn, name string) (int32, error) {
	_, id, err := g.Alloc(ctx, txn, name, 1)
	return id, err
}

// Observe raises the high water mark of the scope to at least id, used for ids
// that were assigned before the generator existed.
func (g *IDGenerator) Observe(txn *store.Txn, name string, id int32) {
	g.lock.Lock()
	defer g.lock.Unlock()

	current := g.scopeItems[name]
	if id <= current {
		return
	}
	g.scopeItems[name] = id
	g.storage.Put(txn, name, id)
	txn.OnRollback(func() {
		g.lock.Lock()
		if g.scopeItems[name] == id {
			g.scopeItems[name] = current
		}
		g.lock.Unlock()
	})
}

func (g *IDGenerator) Current(name string) int32 {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.scopeItems[name]
}
