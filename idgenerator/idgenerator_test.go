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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/catalogdb/store"
)

func TestIDGenerator_Alloc(t *testing.T) {
	ctx := context.TODO()
	cfg := &store.Config{InMemory: true}
	s, err := store.NewStore(ctx, "/catalogs/mapd", true, cfg)
	require.NoError(t, err)

	g, err := NewIDGenerator(ctx, s)
	require.NoError(t, err)

	txn := store.NewTxn()
	_, _, err = g.Alloc(ctx, txn, ScopeTable, 0)
	require.ErrorIs(t, err, ErrInvalidCount)

	id, err := g.AllocOne(ctx, txn, ScopeTable)
	require.NoError(t, err)
	require.Equal(t, int32(1), id)
	base, new, err := g.Alloc(ctx, txn, ScopeTable, 3)
	require.NoError(t, err)
	require.Equal(t, int32(1), base)
	require.Equal(t, int32(4), new)
	require.NoError(t, txn.Commit(ctx))

	// rolled back allocations are handed out again
	errFailed := errors.New("failed")
	err = s.Update(ctx, func(txn *store.Txn) error {
		id, err := g.AllocOne(ctx, txn, ScopeTable)
		require.NoError(t, err)
		require.Equal(t, int32(5), id)
		return errFailed
	})
	require.ErrorIs(t, err, errFailed)
	require.Equal(t, int32(4), g.Current(ScopeTable))

	require.NoError(t, s.Update(ctx, func(txn *store.Txn) error {
		g.Observe(txn, ScopeDict, 10)
		g.Observe(txn, ScopeDict, 3)
		return nil
	}))
	s.Close()

	s, err = store.NewStore(ctx, "/catalogs/mapd", true, cfg)
	require.NoError(t, err)
	defer s.Close()
	g, err = NewIDGenerator(ctx, s)
	require.NoError(t, err)
	require.Equal(t, int32(4), g.Current(ScopeTable))
	require.Equal(t, int32(10), g.Current(ScopeDict))
	require.Equal(t, int32(0), g.Current(ScopeUser))
}
