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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/catalogdb/common/kvstore"
	apierrors "github.com/cubefs/catalogdb/errors"
)

type row struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T, cfg *Config, path string, system bool) *Store {
	s, err := NewStore(context.TODO(), path, system, cfg)
	require.NoError(t, err)
	return s
}

func TestStore_PutGetList(t *testing.T) {
	ctx := context.TODO()
	cfg := &Config{InMemory: true}
	s := newTestStore(t, cfg, "/catalogs/db1", false)
	defer s.Close()

	err := s.Update(ctx, func(txn *Txn) error {
		for i := int32(1); i <= 3; i++ {
			if err := s.Put(txn, CFTables, JoinKey(EncodeID(7), EncodeID(i)), &row{ID: i, Name: "t"}); err != nil {
				return err
			}
		}
		return s.Put(txn, CFTables, JoinKey(EncodeID(8), EncodeID(1)), &row{ID: 1, Name: "other"})
	})
	require.NoError(t, err)

	r := &row{}
	require.NoError(t, s.Get(ctx, CFTables, JoinKey(EncodeID(7), EncodeID(2)), r))
	require.Equal(t, int32(2), r.ID)

	var ids []int32
	err = s.List(ctx, CFTables, KeyPrefix(EncodeID(7)), func(key, value []byte) error {
		ids = append(ids, DecodeID(key[len(key)-4:]))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3}, ids)

	err = s.Update(ctx, func(txn *Txn) error {
		if err := s.DeletePrefix(ctx, txn, CFTables, KeyPrefix(EncodeID(7))); err != nil {
			return err
		}
		require.Equal(t, 1, txn.Count())
		return s.Put(txn, CFTables, JoinKey(EncodeID(7), EncodeID(9)), &row{ID: 9, Name: "t"})
	})
	require.NoError(t, err)
	ok, err := s.Has(ctx, CFTables, JoinKey(EncodeID(7), EncodeID(1)))
	require.NoError(t, err)
	require.False(t, ok)
	ids = ids[:0]
	err = s.List(ctx, CFTables, KeyPrefix(EncodeID(7)), func(key, value []byte) error {
		ids = append(ids, DecodeID(key[len(key)-4:]))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int32{9}, ids)
	ok, err = s.Has(ctx, CFTables, JoinKey(EncodeID(8), EncodeID(1)))
	require.NoError(t, err)
	require.True(t, ok)

	err = s.Get(ctx, CFUsers, EncodeID(1), r)
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestTxn_RollbackRevertsMemory(t *testing.T) {
	ctx := context.TODO()
	cfg := &Config{InMemory: true}
	s := newTestStore(t, cfg, "/catalogs/db1", false)
	defer s.Close()

	names := map[string]int32{}
	errFailed := errors.New("failed")
	err := s.Update(ctx, func(txn *Txn) error {
		names["a"] = 1
		txn.OnRollback(func() { delete(names, "a") })
		names["b"] = 2
		txn.OnRollback(func() { delete(names, "b") })
		txn.OnCommit(func(ctx context.Context) { names["committed"] = 1 })
		if err := s.Put(txn, CFUsers, EncodeID(1), &row{ID: 1}); err != nil {
			return err
		}
		return errFailed
	})
	require.ErrorIs(t, err, errFailed)
	require.Empty(t, names)

	ok, err := s.Has(ctx, CFUsers, EncodeID(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxn_MultiStoreCommit(t *testing.T) {
	ctx := context.TODO()
	cfg := &Config{InMemory: true}
	sys := newTestStore(t, cfg, "/catalogs/mapd", true)
	defer sys.Close()
	db := newTestStore(t, cfg, "/catalogs/db1", false)
	defer db.Close()

	txn := NewTxn()
	committed := 0
	txn.OnCommit(func(ctx context.Context) { committed++ })
	require.NoError(t, sys.Put(txn, CFObjectPermissions, []byte("r1"), &row{ID: 1}))
	require.NoError(t, db.Put(txn, CFTables, EncodeID(1), &row{ID: 1}))
	require.Equal(t, 2, txn.Count())
	require.NoError(t, txn.Commit(ctx))
	require.Equal(t, 1, committed)

	ok, err := sys.Has(ctx, CFObjectPermissions, []byte("r1"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.Has(ctx, CFTables, EncodeID(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, txn.Commit(ctx), apierrors.ErrInvalidArgument)
}

func TestStore_ReopenAndDestroy(t *testing.T) {
	ctx := context.TODO()
	cfg := &Config{InMemory: true}
	s := newTestStore(t, cfg, "/catalogs/db1", false)
	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		s.SetMarker(txn, "m1")
		return nil
	}))
	s.Close()

	s = newTestStore(t, cfg, "/catalogs/db1", false)
	ok, err := s.HasMarker(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	s.Close()

	require.NoError(t, Destroy(ctx, "/catalogs/db1", cfg))
	s = newTestStore(t, cfg, "/catalogs/db1", false)
	defer s.Close()
	ok, err = s.HasMarker(ctx, "m1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeys(t *testing.T) {
	require.Equal(t, int32(-1), DecodeID(EncodeID(-1)))
	require.Equal(t, int32(42), DecodeID(EncodeID(42)))
	require.Equal(t, []byte("a/b"), JoinKey([]byte("a"), []byte("b")))
	require.Equal(t, []byte("a/"), KeyPrefix([]byte("a")))
}

func TestStore_Migrate(t *testing.T) {
	ctx := context.TODO()
	cfg := &Config{InMemory: true}
	s := newTestStore(t, cfg, "/catalogs/db1", false)
	defer s.Close()

	runs := 0
	step := func(txn *Txn) error {
		runs++
		return s.Put(txn, CFTables, EncodeID(1), &row{ID: 1, Name: "migrated"})
	}
	require.NoError(t, s.Migrate(ctx, "step1", step))
	require.NoError(t, s.Migrate(ctx, "step1", step))
	require.Equal(t, 1, runs)

	failed := errors.New("step failed")
	require.ErrorIs(t, s.Migrate(ctx, "step2", func(txn *Txn) error { return failed }), failed)
	need, err := s.NeedsMigration(ctx, "step2")
	require.NoError(t, err)
	require.True(t, need)

	require.NoError(t, s.Update(ctx, func(txn *Txn) error {
		s.MarkCurrentSchema(txn)
		return nil
	}))
	need, err = s.NeedsMigration(ctx, "step2")
	require.NoError(t, err)
	require.False(t, need)
}
