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

package syscatalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

type testResolver struct {
	db     int32
	tables map[string]int32
}

func (r *testResolver) CurrentDB() int32 { return r.db }

func (r *testResolver) TableID(name string) (int32, bool) {
	id, ok := r.tables[name]
	return id, ok
}

func (r *testResolver) DatabaseID(name string) (int32, bool) { return 0, false }

type testCatalog struct {
	testResolver
	objects []*privilege.DBObject
	closed  bool
}

func (c *testCatalog) SecurableObjects() []*privilege.DBObject { return c.objects }

func (c *testCatalog) Close() { c.closed = true }

type testNotifier struct {
	updates [][2]string
}

func (n *testNotifier) UpdateMetadata(ctx context.Context, dbName, tableName string) {
	n.updates = append(n.updates, [2]string{dbName, tableName})
}

type testChunkDeleter struct {
	prefixes []proto.ChunkKey
}

func (d *testChunkDeleter) DeleteChunksWithPrefix(ctx context.Context, prefix proto.ChunkKey, level proto.MemoryLevel) error {
	d.prefixes = append(d.prefixes, prefix)
	return nil
}

func newTestConfig(rbac bool) *Config {
	return &Config{
		BasePath:         "/data",
		CheckPrivileges:  rbac,
		Store:            store.Config{InMemory: true},
		PasswordHashCost: bcrypt.MinCost,
	}
}

func newTestSysCatalog(t *testing.T, cfg *Config) *SysCatalog {
	c, err := New(context.TODO(), cfg, nil, nil)
	require.NoError(t, err)
	return c
}

func tableObject(db, table int32, privs privilege.AccessPrivileges) *privilege.DBObject {
	return privilege.NewDBObjectByID(privilege.TableObject, db, table).SetPrivileges(privs)
}

func TestSysCatalog_Init(t *testing.T) {
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()

	root, err := c.GetMetadataForUser(proto.RootUserName)
	require.NoError(t, err)
	require.Equal(t, proto.RootUserID, root.UserID)
	require.True(t, root.IsSuper)
	require.True(t, c.CheckPasswordForUser(proto.RootPasswordDefault, root))
	require.False(t, c.CheckPasswordForUser("wrong", root))

	sysDB := c.SystemDB()
	require.Equal(t, proto.SystemDBName, sysDB.DBName)
	require.Equal(t, int32(1), sysDB.DBID)
	require.Equal(t, proto.RootUserID, sysDB.OwnerID)
	require.Len(t, c.GetAllDBMetadata(), 1)

	_, err = c.GetMetadataForDB("nope")
	require.ErrorIs(t, err, apierrors.ErrNotFound)
}

func TestSysCatalog_CreateDropUser(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()

	require.NoError(t, c.CreateUser(ctx, "bob", "pw", false))
	bob, err := c.GetMetadataForUser("bob")
	require.NoError(t, err)
	require.Equal(t, int32(1), bob.UserID)
	require.False(t, bob.IsSuper)
	require.True(t, c.CheckPasswordForUser("pw", bob))

	require.True(t, c.HasRole("bob", true))
	require.Equal(t, []string{"bob"}, c.GetUserRoles(bob.UserID))
	require.True(t, c.IsRoleGrantedToUser(bob.UserID, "BOB"))

	sysObj := privilege.NewDBObjectByID(privilege.DatabaseObject, c.SystemDB().DBID, privilege.AllObjects).
		SetPrivileges(privilege.New(privilege.AccessDatabase))
	require.True(t, c.CheckPrivileges(bob, []*privilege.DBObject{sysObj}))

	err = c.CreateUser(ctx, "bob", "other", false)
	require.ErrorIs(t, err, apierrors.ErrAlreadyExists)
	require.Len(t, c.GetAllUserMetadata(), 2)
	require.Equal(t, []string{"bob"}, c.GetUserRoles(bob.UserID))

	require.NoError(t, c.DropUser(ctx, "bob"))
	_, err = c.GetMetadataForUser("bob")
	require.ErrorIs(t, err, apierrors.ErrNotFound)
	require.False(t, c.HasRole("bob", true))
	require.Nil(t, c.GetUserRoles(bob.UserID))
	require.Nil(t, c.GetMetadataForUserRole(bob.UserID))

	require.ErrorIs(t, c.DropUser(ctx, "bob"), apierrors.ErrNotFound)
	require.ErrorIs(t, c.DropUser(ctx, proto.RootUserName), apierrors.ErrPermissionDenied)

	perms, err := c.storage.ListObjectPermissions(ctx)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestSysCatalog_NameClash(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()

	require.NoError(t, c.CreateRole(ctx, "analysts", false))
	require.ErrorIs(t, c.CreateRole(ctx, "Analysts", false), apierrors.ErrAlreadyExists)
	require.ErrorIs(t, c.CreateUser(ctx, "analysts", "pw", false), apierrors.ErrUserRoleNameClash)

	require.NoError(t, c.CreateUser(ctx, "carol", "pw", false))
	require.ErrorIs(t, c.CreateRole(ctx, "carol", false), apierrors.ErrUserRoleNameClash)

	require.NoError(t, c.DropRole(ctx, "analysts"))
	require.ErrorIs(t, c.DropRole(ctx, "analysts"), apierrors.ErrNotFound)
	require.NoError(t, c.CreateUser(ctx, "analysts", "pw", false))
}

func TestSysCatalog_GrantRevokeObjectPrivileges(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()

	require.NoError(t, c.CreateUser(ctx, "bob", "pw", false))
	require.NoError(t, c.CreateRole(ctx, "analysts", false))
	require.NoError(t, c.GrantRole(ctx, "analysts", "bob"))
	require.NoError(t, c.GrantRole(ctx, "analysts", "bob"))
	require.Equal(t, []string{"analysts", "bob"}, c.GetUserRoles(1))
	bob, err := c.GetMetadataForUser("bob")
	require.NoError(t, err)

	selectT5 := func() []*privilege.DBObject {
		return []*privilege.DBObject{tableObject(1, 5, privilege.SelectTable)}
	}
	insertT5 := func() []*privilege.DBObject {
		return []*privilege.DBObject{tableObject(1, 5, privilege.InsertTable)}
	}
	require.False(t, c.CheckPrivileges(bob, selectT5()))

	require.NoError(t, c.GrantDBObjectPrivileges(ctx, "analysts", tableObject(1, 5, privilege.SelectTable), nil))
	require.True(t, c.CheckPrivileges(bob, selectT5()))
	require.False(t, c.CheckPrivileges(bob, insertT5()))
	require.True(t, c.HasAnyPrivileges(bob, []*privilege.DBObject{tableObject(1, 5, privilege.AllTableMigrate)}))
	require.Equal(t, []string{"analysts"}, c.GetRolesForDB(1))

	require.NoError(t, c.GrantDBObjectPrivileges(ctx, "analysts", tableObject(1, 5, privilege.InsertTable), nil))
	require.True(t, c.CheckPrivileges(bob, selectT5()))
	require.True(t, c.CheckPrivileges(bob, insertT5()))

	require.NoError(t, c.RevokeDBObjectPrivileges(ctx, "analysts", tableObject(1, 5, privilege.InsertTable), nil))
	require.True(t, c.CheckPrivileges(bob, selectT5()))
	require.False(t, c.CheckPrivileges(bob, insertT5()))

	shown := tableObject(1, 5, privilege.None)
	require.NoError(t, c.GetDBObjectPrivileges("analysts", shown, nil))
	require.Equal(t, privilege.SelectTable, shown.Privileges)

	require.NoError(t, c.RevokeDBObjectPrivileges(ctx, "analysts", tableObject(1, 5, privilege.SelectTable), nil))
	require.False(t, c.CheckPrivileges(bob, selectT5()))
	require.Nil(t, c.GetMetadataForRole("analysts").FindDBObject(tableObject(1, 5, privilege.None).Key))
	require.ErrorIs(t, c.RevokeDBObjectPrivileges(ctx, "analysts", tableObject(1, 5, privilege.SelectTable), nil),
		apierrors.ErrNotFound)

	perms, err := c.storage.ListObjectPermissions(ctx)
	require.NoError(t, err)
	for _, p := range perms {
		require.NotEqual(t, int32(5), p.ObjectID)
	}

	require.NoError(t, c.RevokeRole(ctx, "analysts", "bob"))
	require.ErrorIs(t, c.RevokeRole(ctx, "analysts", "bob"), apierrors.ErrNotFound)
	require.False(t, c.IsRoleGrantedToUser(bob.UserID, "analysts"))
}

func TestSysCatalog_RootAndSuper(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()

	err := c.GrantDBObjectPrivileges(ctx, proto.RootUserName, tableObject(1, 5, privilege.SelectTable), nil)
	require.ErrorIs(t, err, apierrors.ErrPermissionDenied)
	err = c.RevokeDBObjectPrivileges(ctx, proto.RootUserName, tableObject(1, 5, privilege.SelectTable), nil)
	require.ErrorIs(t, err, apierrors.ErrPermissionDenied)
	require.ErrorIs(t, c.GetDBObjectPrivileges(proto.RootUserName, tableObject(1, 5, privilege.None), nil),
		apierrors.ErrPermissionDenied)

	require.NoError(t, c.CreateUser(ctx, "admin", "pw", true))
	admin, err := c.GetMetadataForUser("admin")
	require.NoError(t, err)
	require.True(t, c.CheckPrivileges(admin, []*privilege.DBObject{tableObject(9, 9, privilege.AllTable)}))
	ok, err := c.CheckPrivilegesByName("admin", []*privilege.DBObject{tableObject(9, 9, privilege.AllTable)})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = c.CheckPrivilegesByName("ghost", nil)
	require.ErrorIs(t, err, apierrors.ErrNotFound)

	sysObj := privilege.NewDBObjectByID(privilege.DatabaseObject, c.SystemDB().DBID, privilege.AllObjects)
	require.NoError(t, c.GetDBObjectPrivileges("admin", sysObj, nil))
	require.Equal(t, privilege.AllDatabase, sysObj.Privileges)

	require.ErrorIs(t, c.GrantDBObjectPrivileges(ctx, "ghost", tableObject(1, 5, privilege.SelectTable), nil),
		apierrors.ErrNotFound)
}

func TestSysCatalog_GetRoles(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()

	require.NoError(t, c.CreateUser(ctx, "bob", "pw", false))
	require.NoError(t, c.CreateRole(ctx, "writers", false))
	require.NoError(t, c.CreateRole(ctx, "analysts", false))

	require.Equal(t, []string{"analysts", "writers"}, c.GetRoles(false, true, 0))
	require.Equal(t, []string{"analysts", "bob", "writers"}, c.GetRoles(true, true, 0))
	require.Empty(t, c.GetRoles(false, false, 1))
	require.NoError(t, c.GrantRole(ctx, "writers", "bob"))
	require.Equal(t, []string{"writers"}, c.GetRoles(false, false, 1))
	require.True(t, c.HasRole("analysts", false))
	require.False(t, c.HasRole("analysts", true))

	require.ErrorIs(t, c.GrantRole(ctx, "ghost", "bob"), apierrors.ErrNotFound)
	require.ErrorIs(t, c.GrantRole(ctx, "writers", "ghost"), apierrors.ErrNotFound)
}

func TestSysCatalog_CreateDBObjectAndOwnership(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()

	require.NoError(t, c.CreateUser(ctx, "alice", "pw", false))
	require.NoError(t, c.CreateUser(ctx, "bob", "pw", false))
	alice, _ := c.GetMetadataForUser("alice")
	bob, _ := c.GetMetadataForUser("bob")
	r := &testResolver{db: 1, tables: map[string]int32{"t1": 9}}

	require.NoError(t, c.CreateDBObject(ctx, alice, "t1", privilege.TableObject, r, 9))
	require.True(t, c.CheckPrivileges(alice, []*privilege.DBObject{tableObject(1, 9, privilege.SelectTable)}))
	require.False(t, c.CheckPrivileges(bob, []*privilege.DBObject{tableObject(1, 9, privilege.SelectTable)}))
	require.True(t, c.VerifyDBObjectOwnership(alice, privilege.NewDBObjectByName("t1", privilege.TableObject), r))
	require.False(t, c.VerifyDBObjectOwnership(bob, privilege.NewDBObjectByName("t1", privilege.TableObject), r))

	root, _ := c.GetMetadataForUser(proto.RootUserName)
	require.NoError(t, c.CreateDBObject(ctx, root, "t1", privilege.TableObject, r, 9))

	err := c.CreateDBObject(ctx, alice, "missing", privilege.TableObject, r, privilege.AllObjects)
	require.ErrorIs(t, err, apierrors.ErrNotFound)

	dash := privilege.NewDBObject(
		privilege.DBObjectKey{ObjectType: privilege.DashboardObject, DBID: 1, ObjectID: 3},
		privilege.AllDashboard, bob.UserID, "sales")
	require.NoError(t, c.PopulateRoleDBObjects(ctx, []*privilege.DBObject{dash}))
	require.True(t, c.VerifyDBObjectOwnership(bob, dash.Clone(), nil))
}

func TestSysCatalog_Restart(t *testing.T) {
	ctx := context.TODO()
	cfg := newTestConfig(true)
	c := newTestSysCatalog(t, cfg)

	require.NoError(t, c.CreateUser(ctx, "bob", "pw", false))
	require.NoError(t, c.CreateRole(ctx, "analysts", false))
	require.NoError(t, c.GrantRole(ctx, "analysts", "bob"))
	require.NoError(t, c.GrantDBObjectPrivileges(ctx, "analysts", tableObject(1, 5, privilege.SelectTable), nil))
	require.NoError(t, c.CreateRole(ctx, "empty", false))
	c.Close()

	c = newTestSysCatalog(t, cfg)
	defer c.Close()
	bob, err := c.GetMetadataForUser("bob")
	require.NoError(t, err)
	require.Equal(t, []string{"analysts", "bob"}, c.GetUserRoles(bob.UserID))
	require.True(t, c.CheckPrivileges(bob, []*privilege.DBObject{tableObject(1, 5, privilege.SelectTable)}))
	require.True(t, c.HasRole("empty", false))
	require.True(t, c.CheckPasswordForUser("pw", bob))

	require.NoError(t, c.CreateUser(ctx, "carol", "pw", false))
	carol, _ := c.GetMetadataForUser("carol")
	require.Equal(t, int32(2), carol.UserID)
}

func TestSysCatalog_RollbackRestoresMemory(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(true))
	defer c.Close()
	require.NoError(t, c.CreateUser(ctx, "bob", "pw", false))

	aborted := errors.New("aborted")
	err := c.WithTxn(ctx, func(tx *Txn) error {
		if err := tx.CreateRole(ctx, "temp", false); err != nil {
			return err
		}
		if err := tx.GrantDBObjectPrivileges(ctx, "bob", tableObject(1, 5, privilege.SelectTable), nil); err != nil {
			return err
		}
		return aborted
	})
	require.ErrorIs(t, err, aborted)
	require.False(t, c.HasRole("temp", false))
	bob, err := c.GetMetadataForUser("bob")
	require.NoError(t, err)
	require.False(t, c.CheckPrivileges(bob, []*privilege.DBObject{tableObject(1, 5, privilege.SelectTable)}))

	require.NoError(t, c.CreateRole(ctx, "temp", false))
}

func TestSysCatalog_LegacyPrivileges(t *testing.T) {
	ctx := context.TODO()
	c := newTestSysCatalog(t, newTestConfig(false))
	defer c.Close()

	require.NoError(t, c.CreateUser(ctx, "alice", "pw", false))
	require.NoError(t, c.CreateUser(ctx, "bob", "pw", false))
	alice, _ := c.GetMetadataForUser("alice")
	bob, _ := c.GetMetadataForUser("bob")
	root, _ := c.GetMetadataForUser(proto.RootUserName)
	d1, err := c.CreateDatabase(ctx, "d1", alice.UserID)
	require.NoError(t, err)

	all := proto.Privileges{Select: true, Insert: true}
	require.True(t, c.CheckLegacyPrivileges(alice, d1, all))
	require.True(t, c.CheckLegacyPrivileges(root, d1, all))
	require.False(t, c.CheckLegacyPrivileges(bob, d1, proto.Privileges{Select: true}))

	require.NoError(t, c.GrantPrivileges(ctx, bob.UserID, d1.DBID, proto.Privileges{Select: true}))
	require.True(t, c.CheckLegacyPrivileges(bob, d1, proto.Privileges{Select: true}))
	require.False(t, c.CheckLegacyPrivileges(bob, d1, all))
	require.ErrorIs(t, c.GrantPrivileges(ctx, 42, d1.DBID, all), apierrors.ErrNotFound)

	require.ErrorIs(t, c.CreateRole(ctx, "analysts", false), apierrors.ErrPrivilegesOff)
	require.False(t, c.HasRole("bob", true))

	require.NoError(t, c.DropUser(ctx, "bob"))
	records, err := c.storage.ListLegacyPrivileges(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSysCatalog_CreateDropDatabase(t *testing.T) {
	ctx := context.TODO()
	cfg := newTestConfig(true)
	notifier := &testNotifier{}
	deleter := &testChunkDeleter{}
	c, err := New(ctx, cfg, deleter, notifier)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.CreateUser(ctx, "alice", "pw", false))
	alice, _ := c.GetMetadataForUser("alice")
	d1, err := c.CreateDatabase(ctx, "d1", alice.UserID)
	require.NoError(t, err)
	require.Equal(t, int32(2), d1.DBID)
	_, err = c.CreateDatabase(ctx, "d1", alice.UserID)
	require.ErrorIs(t, err, apierrors.ErrAlreadyExists)
	_, err = c.CreateDatabase(ctx, "d2", 42)
	require.ErrorIs(t, err, apierrors.ErrNotFound)

	dbStore, err := store.NewStore(ctx, c.StorePath("d1"), false, &cfg.Store)
	require.NoError(t, err)
	need, err := dbStore.NeedsMigration(ctx, "anything")
	require.NoError(t, err)
	require.False(t, need)
	dbStore.Close()

	dbObj := privilege.NewDBObjectByID(privilege.DatabaseObject, d1.DBID, privilege.AllObjects).
		SetPrivileges(privilege.AllDatabase)
	require.True(t, c.CheckPrivileges(alice, []*privilege.DBObject{dbObj}))

	require.NoError(t, c.CreateRole(ctx, "analysts", false))
	require.NoError(t, c.GrantDBObjectPrivileges(ctx, "analysts", tableObject(d1.DBID, 7, privilege.SelectTable), nil))
	require.NoError(t, c.GrantDBObjectPrivileges(ctx, "alice", tableObject(d1.DBID, privilege.AllObjects, privilege.SelectTable), nil))
	require.Equal(t, []string{"analysts"}, c.GetRolesForDB(d1.DBID))
	require.Len(t, c.GetAllUserMetadataForDB(d1.DBID), 1)

	cat := &testCatalog{
		testResolver: testResolver{db: d1.DBID},
		objects:      []*privilege.DBObject{tableObject(d1.DBID, 7, privilege.None)},
	}
	require.ErrorIs(t, c.DropDatabase(ctx, proto.SystemDBName, nil), apierrors.ErrPermissionDenied)
	require.NoError(t, c.DropDatabase(ctx, "d1", cat))
	require.ErrorIs(t, c.DropDatabase(ctx, "d1", nil), apierrors.ErrNotFound)

	require.True(t, cat.closed)
	require.Equal(t, [][2]string{{"d1", ""}}, notifier.updates)
	require.Equal(t, []proto.ChunkKey{{d1.DBID}}, deleter.prefixes)
	require.Empty(t, c.GetRolesForDB(d1.DBID))
	require.Empty(t, c.GetAllUserMetadataForDB(d1.DBID))
	_, err = c.GetMetadataForDB("d1")
	require.ErrorIs(t, err, apierrors.ErrNotFound)
	_, err = cfg.Store.KVOption.FS.Stat(c.StorePath("d1"))
	require.Error(t, err)

	perms, err := c.storage.ListObjectPermissions(ctx)
	require.NoError(t, err)
	for _, p := range perms {
		require.NotEqual(t, d1.DBID, p.DBID)
	}
}

func TestSysCatalog_Migrations(t *testing.T) {
	ctx := context.TODO()
	cfg := newTestConfig(true)

	// a system store written before roles and object permissions existed
	legacy, err := store.NewStore(ctx, filepath.Join(cfg.BasePath, catalogsDir, proto.SystemDBName), true, &cfg.Store)
	require.NoError(t, err)
	st := newStorage(legacy)
	require.NoError(t, legacy.Update(ctx, func(txn *store.Txn) error {
		for _, user := range []*proto.UserMetadata{
			{UserID: proto.RootUserID, UserName: proto.RootUserName, IsSuper: true},
			{UserID: 1, UserName: "alice"},
			{UserID: 2, UserName: "bob"},
		} {
			if err := st.PutUser(txn, user); err != nil {
				return err
			}
		}
		for _, db := range []*proto.DBMetadata{
			{DBID: 1, DBName: proto.SystemDBName},
			{DBID: 2, DBName: "d1", OwnerID: 1},
		} {
			if err := st.PutDatabase(txn, db); err != nil {
				return err
			}
		}
		if err := st.PutLegacyPrivileges(txn, 1, 2, proto.Privileges{Select: true, Insert: true}); err != nil {
			return err
		}
		if err := st.PutLegacyPrivileges(txn, 2, 2, proto.Privileges{Select: true}); err != nil {
			return err
		}
		legacy.SetMarker(txn, store.MarkerInitialized)
		return nil
	}))
	legacy.Close()

	for i := 0; i < 2; i++ {
		c := newTestSysCatalog(t, cfg)
		alice, err := c.GetMetadataForUser("alice")
		require.NoError(t, err)
		bob, err := c.GetMetadataForUser("bob")
		require.NoError(t, err)

		require.Equal(t, []string{"alice"}, c.GetUserRoles(alice.UserID))
		require.Equal(t, []string{"bob"}, c.GetUserRoles(bob.UserID))
		require.True(t, c.HasRole("alice", true))

		require.True(t, c.CheckPrivileges(alice, []*privilege.DBObject{tableObject(2, 11, privilege.AllTableMigrate)}))
		require.False(t, c.CheckPrivileges(alice, []*privilege.DBObject{tableObject(2, 11, privilege.New(privilege.DropTable))}))
		require.False(t, c.CheckPrivileges(bob, []*privilege.DBObject{tableObject(2, 11, privilege.SelectTable)}))

		placeholder := privilege.DBObjectKey{ObjectType: privilege.DatabaseObject, DBID: 0, ObjectID: privilege.AllObjects}
		require.NotNil(t, c.GetMetadataForRole("bob").FindDBObject(placeholder))
		require.Nil(t, c.GetMetadataForRole("alice").FindDBObject(placeholder))

		perms, err := c.storage.ListObjectPermissions(ctx)
		require.NoError(t, err)
		require.Len(t, perms, 4)
		c.Close()
	}

	c := newTestSysCatalog(t, cfg)
	defer c.Close()
	require.NoError(t, c.CreateUser(ctx, "carol", "pw", false))
	carol, _ := c.GetMetadataForUser("carol")
	require.Equal(t, int32(3), carol.UserID)
	d2, err := c.CreateDatabase(ctx, "d2", carol.UserID)
	require.NoError(t, err)
	require.Equal(t, int32(3), d2.DBID)
}
