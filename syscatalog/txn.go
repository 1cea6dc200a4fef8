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

	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

// Txn is handed out by WithTxn only, holding one proves the catalog lock is held.
// It must not be used after fn returns.
type Txn struct {
	c   *SysCatalog
	txn *store.Txn
}

// StoreTxn is the transaction other stores join to commit together with the system store.
func (t *Txn) StoreTxn() *store.Txn {
	return t.txn
}

func (t *Txn) PrivilegesOn() bool {
	return t.c.cfg.CheckPrivileges
}

func (t *Txn) SystemDB() *proto.DBMetadata {
	ret := *t.c.systemDB
	return &ret
}

func (t *Txn) GetMetadataForUserByID(userID int32) (*proto.UserMetadata, error) {
	return t.c.getMetadataForUserByID(userID)
}

func (t *Txn) GetMetadataForDB(name string) (*proto.DBMetadata, error) {
	return t.c.getMetadataForDB(name)
}

func (t *Txn) CreateRole(ctx context.Context, name string, private bool) error {
	return t.c.createRole(ctx, t.txn, name, private)
}

func (t *Txn) GrantDBObjectPrivileges(ctx context.Context, roleName string, obj *privilege.DBObject, r privilege.KeyResolver) error {
	return t.c.grantDBObjectPrivileges(ctx, t.txn, roleName, obj, r)
}

func (t *Txn) RevokeDBObjectPrivileges(ctx context.Context, roleName string, obj *privilege.DBObject, r privilege.KeyResolver) error {
	return t.c.revokeDBObjectPrivileges(ctx, t.txn, roleName, obj, r)
}

func (t *Txn) RevokeDBObjectPrivilegesFromAllRoles(ctx context.Context, obj *privilege.DBObject, r privilege.KeyResolver) error {
	return t.c.revokeDBObjectPrivilegesFromAllRoles(ctx, t.txn, obj, r)
}

// CreateDBObject grants the creator every privilege on a new object, see SysCatalog.CreateDBObject.
func (t *Txn) CreateDBObject(ctx context.Context, user *proto.UserMetadata, name string, typ privilege.ObjectType,
	r privilege.KeyResolver, objectID int32,
) error {
	return t.c.createDBObject(ctx, t.txn, user, name, typ, r, objectID)
}

func (t *Txn) PopulateRoleDBObjects(ctx context.Context, objects []*privilege.DBObject) error {
	return t.c.populateRoleDBObjects(ctx, t.txn, objects)
}
