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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cubefs/catalogdb/catalog"
	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
	"github.com/cubefs/catalogdb/syscatalog"
)

func newTestRegistry(t *testing.T) (*Registry, *int32) {
	ctx := context.TODO()
	sys, err := syscatalog.New(ctx, &syscatalog.Config{
		BasePath:         "/data",
		Store:            store.Config{InMemory: true},
		PasswordHashCost: bcrypt.MinCost,
	}, nil, nil)
	require.NoError(t, err)
	for _, name := range []string{"tpch", "ssb"} {
		_, err = sys.CreateDatabase(ctx, name, proto.RootUserID)
		require.NoError(t, err)
	}

	var opened int32
	open := NewFactory(catalog.Config{Fs: afero.NewMemMapFs()})
	return New(sys, func(ctx context.Context, sys *syscatalog.SysCatalog, db *proto.DBMetadata) (*catalog.Catalog, error) {
		atomic.AddInt32(&opened, 1)
		return open(ctx, sys, db)
	}), &opened
}

func TestRegistry_OpenCatalog(t *testing.T) {
	ctx := context.TODO()
	r, opened := newTestRegistry(t)
	defer r.Close()

	var wg sync.WaitGroup
	catalogs := make([]*catalog.Catalog, 8)
	for i := range catalogs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.OpenCatalog(ctx, "tpch")
			require.NoError(t, err)
			catalogs[i] = c
		}(i)
	}
	wg.Wait()
	for _, c := range catalogs {
		require.Same(t, catalogs[0], c)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(opened))
	require.Equal(t, "tpch", catalogs[0].DB().DBName)

	_, err := r.OpenCatalog(ctx, "ghost")
	require.ErrorIs(t, err, apierrors.ErrDBNotExist)
	_, ok := r.Get("ghost")
	require.False(t, ok)

	require.NoError(t, r.OpenAll(ctx))
	require.Equal(t, []string{"ssb", "tpch"}, r.List())
	require.Equal(t, int32(2), atomic.LoadInt32(opened))
}

func TestRegistry_SetReplaces(t *testing.T) {
	ctx := context.TODO()
	r, _ := newTestRegistry(t)
	defer r.Close()

	first, err := r.OpenCatalog(ctx, "tpch")
	require.NoError(t, err)
	r.Remove("tpch")
	_, ok := r.Get("tpch")
	require.False(t, ok)
	require.Empty(t, r.List())

	// the removed catalog stays usable until someone closes it
	_, err = first.CreateTable(ctx, &proto.TableDescriptor{TableName: "t"},
		[]*proto.ColumnDescriptor{{ColumnName: "a", ColumnType: proto.NewSQLTypeInfo(proto.Int, false)}}, nil, true)
	require.NoError(t, err)
	r.Set("tpch", first)
	first.Close()

	second, err := catalog.New(ctx, &catalog.Config{Fs: afero.NewMemMapFs()}, r.sys, first.DB())
	require.NoError(t, err)
	r.Set("tpch", second)
	got, ok := r.Get("tpch")
	require.True(t, ok)
	require.Same(t, second, got)
	_, err = second.GetMetadataForTable(ctx, "t", false)
	require.NoError(t, err)
}

func TestRegistry_DropDatabase(t *testing.T) {
	ctx := context.TODO()
	r, _ := newTestRegistry(t)
	defer r.Close()

	c, err := r.OpenCatalog(ctx, "tpch")
	require.NoError(t, err)
	require.NoError(t, r.DropDatabase(ctx, "tpch"))
	_, ok := r.Get("tpch")
	require.False(t, ok)
	_, err = c.CreateTable(ctx, &proto.TableDescriptor{TableName: "t"},
		[]*proto.ColumnDescriptor{{ColumnName: "a", ColumnType: proto.NewSQLTypeInfo(proto.Int, false)}}, nil, true)
	require.ErrorIs(t, err, apierrors.ErrDBNotExist)
	_, err = r.OpenCatalog(ctx, "tpch")
	require.ErrorIs(t, err, apierrors.ErrDBNotExist)

	// never opened
	require.NoError(t, r.DropDatabase(ctx, "ssb"))
	require.ErrorIs(t, r.DropDatabase(ctx, "ssb"), apierrors.ErrDBNotExist)
	require.ErrorIs(t, r.DropDatabase(ctx, proto.SystemDBName), apierrors.ErrDropSystemDatabase)
}
