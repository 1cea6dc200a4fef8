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
	"sort"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/metrics"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

// CreateDatabase registers the database and creates its store, fully migrated.
// With RBAC on a non root owner gets every privilege on the database.
func (c *SysCatalog) CreateDatabase(ctx context.Context, name string, ownerID int32) (*proto.DBMetadata, error) {
	span := trace.SpanFromContextSafe(ctx)
	var db *proto.DBMetadata
	err := c.WithTxn(ctx, func(t *Txn) (err error) {
		db, err = c.createDatabase(ctx, t.txn, name, ownerID)
		return
	})
	metrics.ObserveDDL("create_database", err)
	if err != nil {
		span.Warnf("create database %s failed: %s", name, err)
		return nil, err
	}
	span.Infof("database %s created, id: %d, owner: %d", name, db.DBID, ownerID)
	ret := *db
	return &ret, nil
}

func (c *SysCatalog) createDatabase(ctx context.Context, txn *store.Txn, name string, ownerID int32) (*proto.DBMetadata, error) {
	if c.getDBByName(name) != nil {
		return nil, apierrors.Wrapf(apierrors.ErrDBAlreadyExist, "database %s", name)
	}
	owner, ok := c.users[ownerID]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrUserNotExist, "owner id %d of database %s", ownerID, name)
	}
	dbID, err := c.idGen.AllocOne(ctx, txn, idgenerator.ScopeDatabase)
	if err != nil {
		return nil, err
	}
	db := &proto.DBMetadata{DBID: dbID, DBName: name, OwnerID: ownerID}
	if err = c.storage.PutDatabase(txn, db); err != nil {
		return nil, err
	}
	c.putDatabase(db)

	if err = c.createDBObject(ctx, txn, owner, name, privilege.DatabaseObject, nil, dbID); err != nil {
		return nil, err
	}
	if err = c.initDatabaseStore(ctx, txn, name); err != nil {
		return nil, err
	}
	return db, nil
}

// initDatabaseStore creates the store of a new database right away, the rollback
// of txn destroys it again.
func (c *SysCatalog) initDatabaseStore(ctx context.Context, txn *store.Txn, name string) error {
	path := c.StorePath(name)
	if err := store.Destroy(ctx, path, &c.cfg.Store); err != nil {
		return err
	}
	s, err := store.NewStore(ctx, path, false, &c.cfg.Store)
	if err != nil {
		return err
	}
	txn.OnRollback(func() {
		if err := store.Destroy(ctx, path, &c.cfg.Store); err != nil {
			trace.SpanFromContextSafe(ctx).Errorf("remove store[%s] of aborted database failed: %s", path, err)
		}
	})
	defer s.Close()
	return s.Update(ctx, func(dbTxn *store.Txn) error {
		s.MarkCurrentSchema(dbTxn)
		return nil
	})
}

// DropDatabase removes the database. With RBAC on every grant referencing it is
// revoked. cat is the open catalog of the database or nil, it is closed before the
// store of the database is removed.
func (c *SysCatalog) DropDatabase(ctx context.Context, name string, cat DatabaseCatalog) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.WithTxn(ctx, func(t *Txn) error {
		return c.dropDatabase(ctx, t.txn, name, cat)
	})
	metrics.ObserveDDL("drop_database", err)
	if err != nil {
		span.Warnf("drop database %s failed: %s", name, err)
		return err
	}
	span.Infof("database %s dropped", name)
	return nil
}

func (c *SysCatalog) dropDatabase(ctx context.Context, txn *store.Txn, name string, cat DatabaseCatalog) error {
	db := c.getDBByName(name)
	if db == nil {
		return apierrors.Wrapf(apierrors.ErrDBNotExist, "database %s", name)
	}
	if db.DBID == c.systemDB.DBID {
		return apierrors.ErrDropSystemDatabase
	}

	if c.cfg.CheckPrivileges {
		if cat != nil {
			for _, obj := range cat.SecurableObjects() {
				if err := c.revokeDBObjectPrivilegesFromAllRoles(ctx, txn, obj, cat); err != nil {
					return err
				}
			}
		}
		dbObject := privilege.NewDBObjectByID(privilege.DatabaseObject, db.DBID, privilege.AllObjects)
		if err := c.revokeDBObjectPrivilegesFromAllRoles(ctx, txn, dbObject, nil); err != nil {
			return err
		}
		if err := c.revokeAllInDB(ctx, txn, db.DBID); err != nil {
			return err
		}
	}
	for key := range c.legacy {
		if key.dbID == db.DBID {
			c.storage.DeleteLegacyPrivileges(txn, key.userID, key.dbID)
			delete(c.legacy, key)
		}
	}
	c.storage.DeleteDatabase(txn, db.DBID)
	delete(c.dbs, db.DBID)
	delete(c.dbNames, db.DBName)

	dbID, path := db.DBID, c.StorePath(name)
	txn.OnCommit(func(ctx context.Context) {
		span := trace.SpanFromContextSafe(ctx)
		if cat != nil {
			cat.Close()
		}
		if err := store.Destroy(ctx, path, &c.cfg.Store); err != nil {
			span.Errorf("remove store[%s] of dropped database failed: %s", path, err)
		}
		if c.notifier != nil {
			c.notifier.UpdateMetadata(ctx, name, "")
		}
		if c.dataMgr != nil {
			if err := c.dataMgr.DeleteChunksWithPrefix(ctx, proto.ChunkKey{dbID}, proto.DiskLevel); err != nil {
				span.Errorf("delete chunks of dropped database %d failed: %s", dbID, err)
			}
		}
	})
	return nil
}

func (c *SysCatalog) GetMetadataForDB(name string) (*proto.DBMetadata, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.getMetadataForDB(name)
}

func (c *SysCatalog) getMetadataForDB(name string) (*proto.DBMetadata, error) {
	db := c.getDBByName(name)
	if db == nil {
		return nil, apierrors.Wrapf(apierrors.ErrDBNotExist, "database %s", name)
	}
	ret := *db
	return &ret, nil
}

func (c *SysCatalog) GetMetadataForDBByID(dbID int32) (*proto.DBMetadata, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	db, ok := c.dbs[dbID]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrDBNotExist, "database id %d", dbID)
	}
	ret := *db
	return &ret, nil
}

// GetAllDBMetadata returns every database ordered by id.
func (c *SysCatalog) GetAllDBMetadata() []*proto.DBMetadata {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ret := make([]*proto.DBMetadata, 0, len(c.dbs))
	for _, db := range c.dbs {
		copied := *db
		ret = append(ret, &copied)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].DBID < ret[j].DBID })
	return ret
}
