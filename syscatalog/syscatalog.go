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
	"path/filepath"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/btree"
	"golang.org/x/crypto/bcrypt"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/role"
	"github.com/cubefs/catalogdb/store"
)

const (
	catalogsDir    = "mapd_catalogs"
	roleTreeDegree = 16
)

type Config struct {
	BasePath        string       `json:"base_path"`
	CheckPrivileges bool         `json:"check_privileges"`
	Store           store.Config `json:"store"`
	// bcrypt cost of stored password hashes
	PasswordHashCost int `json:"password_hash_cost"`
}

// ChunkDeleter is the part of the storage engine the system catalog needs.
type ChunkDeleter interface {
	// DeleteChunksWithPrefix drops every chunk under prefix, DiskLevel drops them on every level.
	DeleteChunksWithPrefix(ctx context.Context, prefix proto.ChunkKey, level proto.MemoryLevel) error
}

// MetadataNotifier is told about every schema change, an empty table name means the whole database.
type MetadataNotifier interface {
	UpdateMetadata(ctx context.Context, dbName, tableName string)
}

// DatabaseCatalog is the open catalog of a database that is being dropped.
type DatabaseCatalog interface {
	privilege.KeyResolver
	// SecurableObjects lists the objects roles may hold grants on, shards excluded.
	SecurableObjects() []*privilege.DBObject
	Close()
}

type legacyKey struct {
	userID int32
	dbID   int32
}

type roleItem struct {
	key  string
	role *role.GroupRole
}

func (i *roleItem) Less(than btree.Item) bool {
	return i.key < than.(*roleItem).key
}

// SysCatalog owns users, databases and the role graph. Every mutation runs in one
// store transaction while the catalog lock is held.
type SysCatalog struct {
	cfg      *Config
	store    *store.Store
	storage  *storage
	idGen    *idgenerator.IDGenerator
	dataMgr  ChunkDeleter
	notifier MetadataNotifier

	users     map[int32]*proto.UserMetadata
	userNames map[string]int32
	dbs       map[int32]*proto.DBMetadata
	dbNames   map[string]int32
	legacy    map[legacyKey]proto.Privileges
	roles     *btree.BTree
	userRoles map[int32]*role.UserRole
	systemDB  *proto.DBMetadata

	lock sync.RWMutex
}

// New opens the system store under the base path, initializes or migrates it and
// loads everything into memory. dataMgr and notifier may be nil.
func New(ctx context.Context, cfg *Config, dataMgr ChunkDeleter, notifier MetadataNotifier) (*SysCatalog, error) {
	span, ctx := trace.StartSpanFromContext(ctx, "syscatalog")
	if cfg.PasswordHashCost == 0 {
		cfg.PasswordHashCost = bcrypt.DefaultCost
	}

	s, err := store.NewStore(ctx, filepath.Join(cfg.BasePath, catalogsDir, proto.SystemDBName), true, &cfg.Store)
	if err != nil {
		return nil, err
	}
	c := &SysCatalog{
		cfg:      cfg,
		store:    s,
		storage:  newStorage(s),
		dataMgr:  dataMgr,
		notifier: notifier,
	}
	if c.idGen, err = idgenerator.NewIDGenerator(ctx, s); err != nil {
		s.Close()
		return nil, err
	}

	initialized, err := s.HasMarker(ctx, store.MarkerInitialized)
	if err == nil {
		if !initialized {
			err = c.initDB(ctx)
		} else {
			err = c.checkAndExecuteMigrations(ctx)
		}
	}
	if err == nil {
		err = c.load(ctx)
	}
	if err != nil {
		span.Errorf("open system catalog failed: %s", err)
		s.Close()
		return nil, err
	}
	span.Infof("system catalog opened, users: %d, databases: %d, rbac: %v", len(c.users), len(c.dbs), cfg.CheckPrivileges)
	return c, nil
}

func (c *SysCatalog) initDB(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	hash, err := c.hashPassword(proto.RootPasswordDefault)
	if err != nil {
		return err
	}
	root := &proto.UserMetadata{
		UserID:       proto.RootUserID,
		UserName:     proto.RootUserName,
		PasswordHash: hash,
		IsSuper:      true,
	}

	txn := store.NewTxn()
	if err = c.storage.PutUser(txn, root); err != nil {
		txn.Rollback(ctx)
		return err
	}
	dbID, err := c.idGen.AllocOne(ctx, txn, idgenerator.ScopeDatabase)
	if err != nil {
		txn.Rollback(ctx)
		return err
	}
	if err = c.storage.PutDatabase(txn, &proto.DBMetadata{DBID: dbID, DBName: proto.SystemDBName, OwnerID: root.UserID}); err != nil {
		txn.Rollback(ctx)
		return err
	}
	c.store.MarkCurrentSchema(txn)
	if err = txn.Commit(ctx); err != nil {
		return err
	}
	span.Infof("system catalog initialized, system database id %d", dbID)
	return nil
}

func (c *SysCatalog) load(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	c.users = make(map[int32]*proto.UserMetadata)
	c.userNames = make(map[string]int32)
	c.dbs = make(map[int32]*proto.DBMetadata)
	c.dbNames = make(map[string]int32)
	c.legacy = make(map[legacyKey]proto.Privileges)
	c.roles = btree.New(roleTreeDegree)
	c.userRoles = make(map[int32]*role.UserRole)
	c.systemDB = nil

	users, err := c.storage.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		c.putUser(user)
	}
	dbs, err := c.storage.ListDatabases(ctx)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		c.putDatabase(db)
	}
	if id, ok := c.dbNames[proto.SystemDBName]; ok {
		c.systemDB = c.dbs[id]
	} else {
		span.Errorf("system database %s not found", proto.SystemDBName)
		return apierrors.ErrMissingSystemDatabase
	}
	legacy, err := c.storage.ListLegacyPrivileges(ctx)
	if err != nil {
		return err
	}
	for _, record := range legacy {
		c.legacy[legacyKey{userID: record.UserID, dbID: record.DBID}] = record.Privileges
	}

	if !c.cfg.CheckPrivileges {
		return nil
	}
	if err = c.buildRoleMap(ctx); err != nil {
		return err
	}
	return c.buildUserRoleMap(ctx)
}

func (c *SysCatalog) buildRoleMap(ctx context.Context) error {
	roles, err := c.storage.ListRoles(ctx)
	if err != nil {
		return err
	}
	for _, record := range roles {
		c.putRole(role.NewGroupRole(record.Name, record.Private))
	}
	perms, err := c.storage.ListObjectPermissions(ctx)
	if err != nil {
		return err
	}
	for _, record := range perms {
		g := c.getRole(record.RoleName)
		if g == nil {
			g = role.NewGroupRole(record.RoleName, record.RoleIsUser)
			c.putRole(g)
		}
		key := privilege.DBObjectKey{ObjectType: record.PermissionType, DBID: record.DBID, ObjectID: record.ObjectID}
		obj := privilege.NewDBObject(key, privilege.New(record.Privileges), record.OwnerID, record.ObjectName)
		if err = g.GrantPrivileges(obj); err != nil {
			return err
		}
	}
	return nil
}

func (c *SysCatalog) buildUserRoleMap(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	members, err := c.storage.ListMembers(ctx)
	if err != nil {
		return err
	}
	for _, record := range members {
		g := c.getRole(record.RoleName)
		if g == nil {
			span.Errorf("role %s of member %s not found", record.RoleName, record.UserName)
			return apierrors.Wrapf(apierrors.ErrInconsistency, "role %s not found when building role map", record.RoleName)
		}
		user := c.getUserByName(record.UserName)
		if user == nil {
			span.Errorf("member %s of role %s not found", record.UserName, record.RoleName)
			return apierrors.Wrapf(apierrors.ErrInconsistency, "user %s not found when building role map", record.UserName)
		}
		ur, ok := c.userRoles[user.UserID]
		if !ok {
			ur = role.NewUserRole(user.UserID, user.UserName)
			c.userRoles[user.UserID] = ur
		}
		ur.GrantRole(g)
	}
	return nil
}

// WithTxn runs fn under the catalog lock inside one transaction that fn may extend
// to other stores. The transaction commits when fn returns nil. On failure the
// in-memory state is reloaded from the untouched system store.
func (c *SysCatalog) WithTxn(ctx context.Context, fn func(t *Txn) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	txn := store.NewTxn()
	txn.OnRollback(func() {
		if err := c.load(ctx); err != nil {
			trace.SpanFromContextSafe(ctx).Errorf("reload system catalog after rollback failed: %s", err)
		}
	})
	if err := fn(&Txn{c: c, txn: txn}); err != nil {
		txn.Rollback(ctx)
		return err
	}
	return txn.Commit(ctx)
}

// PrivilegesOn reports whether role based access control is enabled.
func (c *SysCatalog) PrivilegesOn() bool {
	return c.cfg.CheckPrivileges
}

// Store is the system store, the catalog of the system database shares it.
func (c *SysCatalog) Store() *store.Store {
	return c.store
}

func (c *SysCatalog) StoreConfig() *store.Config {
	return &c.cfg.Store
}

func (c *SysCatalog) BasePath() string {
	return c.cfg.BasePath
}

// StorePath is the store directory of the named database.
func (c *SysCatalog) StorePath(dbName string) string {
	return filepath.Join(c.cfg.BasePath, catalogsDir, dbName)
}

func (c *SysCatalog) SystemDB() *proto.DBMetadata {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ret := *c.systemDB
	return &ret
}

func (c *SysCatalog) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.store.Close()
}

func (c *SysCatalog) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cfg.PasswordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (c *SysCatalog) putUser(user *proto.UserMetadata) {
	c.users[user.UserID] = user
	c.userNames[user.UserName] = user.UserID
}

func (c *SysCatalog) getUserByName(name string) *proto.UserMetadata {
	id, ok := c.userNames[name]
	if !ok {
		return nil
	}
	return c.users[id]
}

func (c *SysCatalog) putDatabase(db *proto.DBMetadata) {
	c.dbs[db.DBID] = db
	c.dbNames[db.DBName] = db.DBID
}

func (c *SysCatalog) getDBByName(name string) *proto.DBMetadata {
	id, ok := c.dbNames[name]
	if !ok {
		return nil
	}
	return c.dbs[id]
}

func (c *SysCatalog) getRole(name string) *role.GroupRole {
	item := c.roles.Get(&roleItem{key: role.CanonicalName(name)})
	if item == nil {
		return nil
	}
	return item.(*roleItem).role
}

func (c *SysCatalog) putRole(g *role.GroupRole) {
	c.roles.ReplaceOrInsert(&roleItem{key: role.CanonicalName(g.Name()), role: g})
}

func (c *SysCatalog) deleteRole(name string) {
	c.roles.Delete(&roleItem{key: role.CanonicalName(name)})
}

// rangeRoles visits roles in canonical name order until fn returns false.
func (c *SysCatalog) rangeRoles(fn func(g *role.GroupRole) bool) {
	c.roles.Ascend(func(i btree.Item) bool {
		return fn(i.(*roleItem).role)
	})
}

// resolver answers database names from the catalog itself so that keys can be
// loaded while the catalog lock is held.
type resolver struct {
	c     *SysCatalog
	inner privilege.KeyResolver
}

func (c *SysCatalog) resolver(inner privilege.KeyResolver) privilege.KeyResolver {
	return &resolver{c: c, inner: inner}
}

func (r *resolver) CurrentDB() int32 {
	if r.inner == nil {
		return r.c.systemDB.DBID
	}
	return r.inner.CurrentDB()
}

func (r *resolver) TableID(name string) (int32, bool) {
	if r.inner == nil {
		return 0, false
	}
	return r.inner.TableID(name)
}

func (r *resolver) DatabaseID(name string) (int32, bool) {
	db := r.c.getDBByName(name)
	if db == nil {
		return 0, false
	}
	return db.DBID, true
}
