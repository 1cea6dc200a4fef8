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
	"encoding/json"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/catalogdb/common/kvstore"
	"github.com/cubefs/catalogdb/util"
)

const (
	CFUsers             = kvstore.CF("users")
	CFDatabases         = kvstore.CF("databases")
	CFRoles             = kvstore.CF("roles")
	CFObjectPermissions = kvstore.CF("object_permissions")
	CFPrivileges        = kvstore.CF("privileges")
	CFTables            = kvstore.CF("tables")
	CFColumns           = kvstore.CF("columns")
	CFViews             = kvstore.CF("views")
	CFDictionaries      = kvstore.CF("dictionaries")
	CFDashboards        = kvstore.CF("dashboards")
	CFLinks             = kvstore.CF("links")
	CFLogicalToPhysical = kvstore.CF("logical_to_physical")
	CFFrontendViews     = kvstore.CF("frontend_views")
	CFMeta              = kvstore.CF("meta")
	CFID                = kvstore.CF("id")
)

var allColumns = []kvstore.CF{
	CFUsers, CFDatabases, CFRoles, CFObjectPermissions, CFPrivileges,
	CFTables, CFColumns, CFViews, CFDictionaries, CFDashboards, CFLinks,
	CFLogicalToPhysical, CFFrontendViews, CFMeta, CFID,
}

type Config struct {
	KVType   kvstore.LsmKVType `json:"kv_type"`
	KVOption kvstore.Option    `json:"kv_option"`
	// keep every store on one in-memory filesystem, pebble only
	InMemory bool `json:"in_memory"`
}

// Store is the persistent catalog store of one database directory.
type Store struct {
	kvStore kvstore.Store
	path    string
	system  bool
	cfg     *Config
}

func NewStore(ctx context.Context, path string, system bool, cfg *Config) (*Store, error) {
	span := trace.SpanFromContextSafe(ctx)
	cfg.init()

	option := cfg.KVOption
	option.CreateIfMissing = true
	option.ColumnFamily = allColumns
	kvStore, err := kvstore.NewKVStore(ctx, path, cfg.KVType, &option)
	if err != nil {
		span.Errorf("open catalog store[%s] failed: %s", path, err)
		return nil, err
	}
	span.Debugf("catalog store[%s] opened, kv type: %s", path, cfg.KVType)

	return &Store{
		kvStore: kvStore,
		path:    path,
		system:  system,
		cfg:     cfg,
	}, nil
}

// Destroy removes the store directory, the store must be closed.
func Destroy(ctx context.Context, path string, cfg *Config) error {
	cfg.init()
	return cfg.fs().RemoveAll(path)
}

func (cfg *Config) init() {
	if cfg.KVType == "" {
		cfg.KVType = kvstore.RocksdbLsmKVType
	}
	if cfg.InMemory {
		cfg.KVType = kvstore.PebbleLsmKVType
		if cfg.KVOption.FS == nil {
			cfg.KVOption.FS = vfs.NewMem()
		}
	}
}

func (cfg *Config) fs() vfs.FS {
	if cfg.KVOption.FS != nil {
		return cfg.KVOption.FS
	}
	return vfs.Default
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) IsSystem() bool {
	return s.system
}

// Get decodes the json row stored under key into v.
func (s *Store) Get(ctx context.Context, col kvstore.CF, key []byte, v interface{}) error {
	raw, err := s.kvStore.GetRaw(ctx, col, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (s *Store) Has(ctx context.Context, col kvstore.CF, key []byte) (bool, error) {
	_, err := s.kvStore.GetRaw(ctx, col, key)
	if err == kvstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List calls fn for every committed key under prefix in key order.
func (s *Store) List(ctx context.Context, col kvstore.CF, prefix []byte, fn func(key, value []byte) error) error {
	lr := s.kvStore.List(ctx, col, prefix)
	defer lr.Close()

	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return err
		}
		if key == nil {
			return nil
		}
		if err = fn(key, value); err != nil {
			return err
		}
	}
}

func (s *Store) Put(txn *Txn, col kvstore.CF, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	txn.batch(s).Put(col, key, data)
	return nil
}

func (s *Store) PutRaw(txn *Txn, col kvstore.CF, key, value []byte) {
	txn.batch(s).Put(col, key, value)
}

func (s *Store) Delete(txn *Txn, col kvstore.CF, key []byte) {
	txn.batch(s).Delete(col, key)
}

// DeletePrefix deletes every key under prefix with one range tombstone. Keys put
// into txn before the call are deleted too, keys put after it survive.
func (s *Store) DeletePrefix(ctx context.Context, txn *Txn, col kvstore.CF, prefix []byte) error {
	end := kvstore.PrefixSuccessor(prefix)
	if end == nil {
		// no upper bound for an empty or all 0xff prefix
		return s.List(ctx, col, prefix, func(key, _ []byte) error {
			s.Delete(txn, col, key)
			return nil
		})
	}
	txn.batch(s).DeleteRange(col, prefix, end)
	return nil
}

// Update runs fn in a new transaction and commits it when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(txn *Txn) error) error {
	txn := NewTxn()
	if err := fn(txn); err != nil {
		txn.Rollback(ctx)
		return err
	}
	return txn.Commit(ctx)
}

func (s *Store) HasMarker(ctx context.Context, name string) (bool, error) {
	return s.Has(ctx, CFMeta, util.StringsToBytes(name))
}

func (s *Store) SetMarker(txn *Txn, name string) {
	s.PutRaw(txn, CFMeta, []byte(name), []byte{1})
}

func (s *Store) Close() {
	s.kvStore.Close()
}
