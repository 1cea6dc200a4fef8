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

	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

const (
	migrationIDScopes         = "id_scopes"
	migrationLegacyPrivileges = "legacy_privileges"
	migrationUserRoles        = "user_roles"
	migrationObjectPerms      = "object_permissions"
)

type migration struct {
	name string
	rbac bool
	fn   func(ctx context.Context, txn *store.Txn) error
}

// checkAndExecuteMigrations brings an existing system store to the current schema.
// Later steps read what earlier ones wrote, the order is fixed.
func (c *SysCatalog) checkAndExecuteMigrations(ctx context.Context) error {
	migrations := []migration{
		{name: migrationIDScopes, fn: c.observeIDs},
		{name: migrationLegacyPrivileges, fn: func(context.Context, *store.Txn) error { return nil }},
		{name: migrationUserRoles, rbac: true, fn: c.createUserRoles},
		{name: migrationObjectPerms, rbac: true, fn: c.migratePrivileges},
	}
	for _, m := range migrations {
		if m.rbac && !c.cfg.CheckPrivileges {
			continue
		}
		fn := m.fn
		if err := c.store.Migrate(ctx, m.name, func(txn *store.Txn) error { return fn(ctx, txn) }); err != nil {
			return err
		}
	}
	return nil
}

// observeIDs raises the id scopes above the ids assigned before they were tracked.
func (c *SysCatalog) observeIDs(ctx context.Context, txn *store.Txn) error {
	users, err := c.storage.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		c.idGen.Observe(txn, idgenerator.ScopeUser, user.UserID)
	}
	dbs, err := c.storage.ListDatabases(ctx)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		c.idGen.Observe(txn, idgenerator.ScopeDatabase, db.DBID)
	}
	return nil
}

// createUserRoles gives every user but root a private role it is a member of.
func (c *SysCatalog) createUserRoles(ctx context.Context, txn *store.Txn) error {
	users, err := c.storage.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if user.UserID == proto.RootUserID {
			continue
		}
		if err = c.storage.PutRole(txn, user.UserName, true); err != nil {
			return err
		}
		if err = c.storage.PutMember(txn, user.UserName, user.UserName); err != nil {
			return err
		}
	}
	return nil
}

// migratePrivileges turns legacy select and insert grants into type wide grants on
// tables, dashboards and views. Users without legacy grants get the empty placeholder.
func (c *SysCatalog) migratePrivileges(ctx context.Context, txn *store.Txn) error {
	users, err := c.storage.ListUsers(ctx)
	if err != nil {
		return err
	}
	legacy, err := c.storage.ListLegacyPrivileges(ctx)
	if err != nil {
		return err
	}
	names := make(map[int32]string, len(users))
	for _, user := range users {
		names[user.UserID] = user.UserName
	}

	grantees := make(map[int32]bool)
	for _, record := range legacy {
		name, ok := names[record.UserID]
		if !ok || !record.Select || !record.Insert {
			continue
		}
		grantees[record.UserID] = true
		grants := []struct {
			typ   privilege.ObjectType
			privs privilege.AccessPrivileges
		}{
			{privilege.TableObject, privilege.AllTableMigrate},
			{privilege.DashboardObject, privilege.AllDashboardMigrate},
			{privilege.ViewObject, privilege.AllViewMigrate},
		}
		for _, grant := range grants {
			key := privilege.DBObjectKey{ObjectType: grant.typ, DBID: record.DBID, ObjectID: privilege.AllObjects}
			obj := privilege.NewDBObject(key, grant.privs, proto.RootUserID, "")
			if err = c.storage.PutObjectPermission(txn, name, true, obj); err != nil {
				return err
			}
		}
	}
	for _, user := range users {
		if user.UserID == proto.RootUserID || grantees[user.UserID] {
			continue
		}
		placeholder := privilege.NewDBObject(
			privilege.DBObjectKey{ObjectType: privilege.DatabaseObject, DBID: 0, ObjectID: privilege.AllObjects},
			privilege.None, proto.RootUserID, "")
		if err = c.storage.PutObjectPermission(txn, user.UserName, true, placeholder); err != nil {
			return err
		}
	}
	return nil
}
