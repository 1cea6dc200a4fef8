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

package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/cubefs/catalogdb/catalog"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/syscatalog"
)

// Factory builds the catalog of an existing database.
type Factory func(ctx context.Context, sys *syscatalog.SysCatalog, db *proto.DBMetadata) (*catalog.Catalog, error)

// NewFactory returns a Factory opening every catalog with cfg. Each catalog gets
// its own copy of cfg.
func NewFactory(cfg catalog.Config) Factory {
	return func(ctx context.Context, sys *syscatalog.SysCatalog, db *proto.DBMetadata) (*catalog.Catalog, error) {
		c := cfg
		return catalog.New(ctx, &c, sys, db)
	}
}

// Registry maps database names to their live catalog. There is at most one live
// catalog per name.
type Registry struct {
	sys        *syscatalog.SysCatalog
	newCatalog Factory

	catalogs  map[string]*catalog.Catalog
	singleRun singleflight.Group
	lock      sync.RWMutex
}

func New(sys *syscatalog.SysCatalog, factory Factory) *Registry {
	return &Registry{
		sys:        sys,
		newCatalog: factory,
		catalogs:   make(map[string]*catalog.Catalog),
	}
}

// Set registers c under name. A different catalog registered under the same name
// is closed.
func (r *Registry) Set(name string, c *catalog.Catalog) {
	r.lock.Lock()
	old := r.catalogs[name]
	r.catalogs[name] = c
	r.lock.Unlock()

	if old != nil && old != c {
		old.Close()
	}
}

func (r *Registry) Get(name string) (*catalog.Catalog, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.catalogs[name]
	return c, ok
}

// Remove forgets the catalog of name without closing it.
func (r *Registry) Remove(name string) {
	r.lock.Lock()
	delete(r.catalogs, name)
	r.lock.Unlock()
}

// List returns the registered names in order.
func (r *Registry) List() []string {
	r.lock.RLock()
	names := make([]string, 0, len(r.catalogs))
	for name := range r.catalogs {
		names = append(names, name)
	}
	r.lock.RUnlock()
	sort.Strings(names)
	return names
}

// OpenCatalog returns the live catalog of name, opening and registering it first
// when needed. Concurrent callers share one open.
func (r *Registry) OpenCatalog(ctx context.Context, name string) (*catalog.Catalog, error) {
	if c, ok := r.Get(name); ok {
		return c, nil
	}

	span, ctx := trace.StartSpanFromContextWithTraceID(ctx, "open-catalog", uuid.New().String())
	v, err, _ := r.singleRun.Do(name, func() (interface{}, error) {
		if c, ok := r.Get(name); ok {
			return c, nil
		}
		db, err := r.sys.GetMetadataForDB(name)
		if err != nil {
			return nil, err
		}
		c, err := r.newCatalog(ctx, r.sys, db)
		if err != nil {
			return nil, err
		}
		r.Set(name, c)
		return c, nil
	})
	if err != nil {
		span.Warnf("open catalog of database %s failed: %s", name, err)
		return nil, err
	}
	return v.(*catalog.Catalog), nil
}

// OpenAll opens the catalog of every database except the system database.
func (r *Registry) OpenAll(ctx context.Context) error {
	systemDB := r.sys.SystemDB()
	for _, db := range r.sys.GetAllDBMetadata() {
		if db.DBID == systemDB.DBID {
			continue
		}
		if _, err := r.OpenCatalog(ctx, db.DBName); err != nil {
			return err
		}
	}
	return nil
}

// DropDatabase drops the database and unregisters its catalog, which the system
// catalog closes once the drop committed.
func (r *Registry) DropDatabase(ctx context.Context, name string) error {
	var cat syscatalog.DatabaseCatalog
	c, ok := r.Get(name)
	if ok {
		cat = c
	}
	if err := r.sys.DropDatabase(ctx, name, cat); err != nil {
		return err
	}
	r.Remove(name)
	return nil
}

// Close closes every catalog and then the system catalog.
func (r *Registry) Close() {
	r.lock.Lock()
	catalogs := r.catalogs
	r.catalogs = make(map[string]*catalog.Catalog)
	r.lock.Unlock()

	for _, c := range catalogs {
		c.Close()
	}
	r.sys.Close()
}
