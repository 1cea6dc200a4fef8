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

package privilege

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	apierrors "github.com/cubefs/catalogdb/errors"
)

type mockResolver struct {
	db     int32
	tables map[string]int32
	dbs    map[string]int32
}

func (r *mockResolver) CurrentDB() int32 { return r.db }

func (r *mockResolver) TableID(name string) (int32, bool) {
	id, ok := r.tables[name]
	return id, ok
}

func (r *mockResolver) DatabaseID(name string) (int32, bool) {
	id, ok := r.dbs[name]
	return id, ok
}

func TestAccessPrivileges(t *testing.T) {
	p := None
	require.False(t, p.HasAny())

	p.Add(SelectTable)
	p.Add(InsertTable)
	require.True(t, p.HasAny())
	require.True(t, p.HasAll(SelectTable))
	require.True(t, p.HasAll(AllTableMigrate))
	require.False(t, p.HasAll(New(SelectFromTable|DropTable)))
	require.True(t, p.Overlaps(New(SelectFromTable|DropTable)))

	p.Remove(SelectTable)
	require.False(t, p.HasAll(SelectTable))
	require.True(t, p.HasAll(InsertTable))

	p.Remove(AllTable)
	require.Equal(t, None, p)

	all := AllDatabase
	require.True(t, all.HasAll(DefaultDatabase))
	all.Reset()
	require.False(t, all.HasAny())
}

func TestDBObjectKey_Order(t *testing.T) {
	keys := []DBObjectKey{
		{ObjectType: TableObject, DBID: 2, ObjectID: 1},
		{ObjectType: DatabaseObject, DBID: 2, ObjectID: AllObjects},
		{ObjectType: TableObject, DBID: 1, ObjectID: 5},
		{ObjectType: TableObject, DBID: 1, ObjectID: AllObjects},
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	require.Equal(t, DatabaseObject, keys[0].ObjectType)
	require.Equal(t, DBObjectKey{ObjectType: TableObject, DBID: 1, ObjectID: AllObjects}, keys[1])
	require.Equal(t, int32(5), keys[2].ObjectID)
	require.Equal(t, int32(2), keys[3].DBID)

	require.Equal(t, "2:1:-1", keys[2].TypeWide().String())
}

func TestDBObject_LoadKey(t *testing.T) {
	r := &mockResolver{db: 3, tables: map[string]int32{"t1": 9}, dbs: map[string]int32{"d1": 3}}

	obj := NewDBObjectByName("t1", TableObject)
	require.NoError(t, obj.LoadKey(r))
	require.Equal(t, DBObjectKey{ObjectType: TableObject, DBID: 3, ObjectID: 9}, obj.Key)

	obj = NewDBObjectByName("d1", DatabaseObject)
	require.NoError(t, obj.LoadKey(r))
	require.Equal(t, DBObjectKey{ObjectType: DatabaseObject, DBID: 3, ObjectID: AllObjects}, obj.Key)

	obj = NewDBObjectByName("missing", ViewObject)
	require.ErrorIs(t, obj.LoadKey(r), apierrors.ErrNotFound)

	obj = NewDBObjectByName("d2", DatabaseObject)
	require.ErrorIs(t, obj.LoadKey(r), apierrors.ErrNotFound)

	// explicit keys are kept as they are
	obj = NewDBObjectByID(DashboardObject, 7, 4)
	require.NoError(t, obj.LoadKey(r))
	require.Equal(t, DBObjectKey{ObjectType: DashboardObject, DBID: 7, ObjectID: 4}, obj.Key)
}
