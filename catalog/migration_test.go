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

package catalog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/catalogdb/common/kvstore"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

// legacyRow encodes v without the fields an older release did not write.
func legacyRow(t *testing.T, v interface{}, drop ...string) []byte {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	r := make(map[string]json.RawMessage)
	require.NoError(t, json.Unmarshal(raw, &r))
	for _, field := range drop {
		delete(r, field)
	}
	raw, err = json.Marshal(r)
	require.NoError(t, err)
	return raw
}

func TestCatalog_MigrateLegacyStore(t *testing.T) {
	ctx := context.TODO()
	env := newTestEnv(t, true)
	require.NoError(t, env.sys.CreateUser(ctx, "alice", "pw", false))
	alice, err := env.sys.GetMetadataForUser("alice")
	require.NoError(t, err)

	dictType := proto.NewSQLTypeInfo(proto.Text, false)
	dictType.Compression = proto.EncodingDict
	dictType.CompParam = 3
	dictType.Size = 4
	rows := []struct {
		cf  kvstore.CF
		key []byte
		raw []byte
	}{
		{store.CFTables, store.EncodeID(7), legacyRow(t, &proto.TableDescriptor{
			TableID: 7, TableName: "events", UserID: alice.UserID, NColumns: 2,
			MaxFragRows: proto.DefaultMaxFragRows, FragPageSize: proto.DefaultFragPageSize, MaxRows: proto.DefaultMaxRows,
		}, "max_chunk_size", "shard_column_id", "shard", "num_shards", "key_metainfo", "version")},
		{store.CFColumns, store.JoinKey(store.EncodeID(7), store.EncodeID(1)), legacyRow(t, &proto.ColumnDescriptor{
			TableID: 7, ColumnID: 1, ColumnName: "msg", ColumnType: dictType,
		}, "is_deleted")},
		{store.CFColumns, store.JoinKey(store.EncodeID(7), store.EncodeID(2)), legacyRow(t, &proto.ColumnDescriptor{
			TableID: 7, ColumnID: 2, ColumnName: proto.RowIDColumnName, ColumnType: proto.NewSQLTypeInfo(proto.BigInt, true),
			IsSystemCol: true, IsVirtualCol: true, VirtualExpr: proto.RowIDVirtualExpr,
		}, "is_deleted")},
		{store.CFDictionaries, store.EncodeID(3), legacyRow(t, &proto.DictDescriptor{
			DictRef: proto.DictRef{DBID: env.db.DBID, DictID: 3}, DictName: "events_msg_dict3", DictNBits: 32,
		}, "refcount", "version")},
		{store.CFFrontendViews, store.EncodeID(4), legacyRow(t, &proto.DashboardDescriptor{
			ViewID: 4, ViewName: "board", ViewState: "state",
		}, "owner_id", "image_hash", "update_time", "metadata")},
		{store.CFLinks, store.EncodeID(9), legacyRow(t, &proto.LinkDescriptor{
			LinkID: 9, Link: "abcd1234", ViewState: "state",
		}, "owner_id", "metadata")},
	}

	s, err := store.NewStore(ctx, env.sys.StorePath(env.db.DBName), false, env.sys.StoreConfig())
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(txn *store.Txn) error {
		s.Delete(txn, store.CFMeta, []byte(store.MarkerCurrentSchema))
		for _, row := range rows {
			s.PutRaw(txn, row.cf, row.key, row.raw)
		}
		return nil
	}))
	s.Close()

	oldFolder := filepath.Join("/data", dataDir, env.db.DBName+"_events_msg_dict3")
	require.NoError(t, env.cfg.Fs.MkdirAll(oldFolder, dictFolderPerm))

	c := env.open(t)
	defer func() { c.Close() }()

	td, err := c.GetMetadataForTable(ctx, "events", false)
	require.NoError(t, err)
	require.Equal(t, int32(-1), td.Shard)
	require.Equal(t, int32(0), td.NShards)
	require.Equal(t, "[]", td.KeyMetainfo)
	require.Equal(t, proto.DefaultMaxChunkSize, td.MaxChunkSize)
	require.Equal(t, proto.LegacyFragPageSize, td.FragPageSize)
	require.Equal(t, proto.InitialVersion, td.Version)
	require.Equal(t, alice.UserID, td.UserID)
	require.Nil(t, c.GetDeletedColumn(td.TableID))

	dd, err := c.GetMetadataForDict(ctx, 3, false)
	require.NoError(t, err)
	require.Equal(t, int32(1), dd.Refcount)
	require.Equal(t, proto.InitialVersion, dd.Version)
	require.True(t, env.exists(t, dd.DictFolderPath))
	require.False(t, env.exists(t, oldFolder))

	vd, err := c.GetMetadataForDashboardByID(4)
	require.NoError(t, err)
	require.Equal(t, "board", vd.ViewName)
	require.Equal(t, proto.RootUserID, vd.UserID)
	ld, err := c.GetMetadataForLink("abcd1234")
	require.NoError(t, err)
	require.Equal(t, int32(9), ld.LinkID)

	obj := privilege.NewDBObjectByID(privilege.TableObject, env.db.DBID, td.TableID).SetPrivileges(privilege.AllTable)
	require.True(t, env.sys.CheckPrivileges(alice, []*privilege.DBObject{obj}))

	next := createTable(t, c, "fresh", textColumn("s"))
	require.Equal(t, int32(8), next.TableID)
	s2, err := c.GetMetadataForColumn(next.TableID, "s")
	require.NoError(t, err)
	require.Equal(t, int32(4), s2.ColumnType.CompParam)
	dashID, err := c.CreateDashboard(ctx, &proto.DashboardDescriptor{ViewName: "new"})
	require.NoError(t, err)
	require.Equal(t, int32(5), dashID)

	for _, name := range []string{MigrationTableSchemaDefaults, MigrationDictionaryNames, MigrationIDScopes, MigrationRecordOwnership} {
		done, err := c.store.HasMarker(ctx, name)
		require.NoError(t, err)
		require.True(t, done, name)
	}
}

func TestCatalog_FreshStoreSkipsMigrations(t *testing.T) {
	ctx := context.TODO()
	env := newTestEnv(t, false)
	c := env.open(t)
	defer func() { c.Close() }()

	done, err := c.store.HasMarker(ctx, MigrationPageSize)
	require.NoError(t, err)
	require.False(t, done)
	need, err := c.store.NeedsMigration(ctx, MigrationPageSize)
	require.NoError(t, err)
	require.False(t, need)
}
