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

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/metrics"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/role"
	"github.com/cubefs/catalogdb/store"
)

// GrantDBObjectPrivileges adds the privileges of obj to the role, the key of obj is
// resolved against r when it is not known yet. r may be nil for database objects.
func (c *SysCatalog) GrantDBObjectPrivileges(ctx context.Context, roleName string, obj *privilege.DBObject, r privilege.KeyResolver) error {
	err := c.WithTxn(ctx, func(t *Txn) error {
		return c.grantDBObjectPrivileges(ctx, t.txn, roleName, obj, r)
	})
	metrics.ObserveDDL("grant_privileges", err)
	return err
}

// RevokeDBObjectPrivileges clears the privileges of obj from the role, the grant
// row is deleted once nothing is left.
func (c *SysCatalog) RevokeDBObjectPrivileges(ctx context.Context, roleName string, obj *privilege.DBObject, r privilege.KeyResolver) error {
	err := c.WithTxn(ctx, func(t *Txn) error {
		return c.revokeDBObjectPrivileges(ctx, t.txn, roleName, obj, r)
	})
	metrics.ObserveDDL("revoke_privileges", err)
	return err
}

// RevokeDBObjectPrivilegesFromAllRoles removes every grant on obj, private roles included.
func (c *SysCatalog) RevokeDBObjectPrivilegesFromAllRoles(ctx context.Context, obj *privilege.DBObject, r privilege.KeyResolver) error {
	err := c.WithTxn(ctx, func(t *Txn) error {
		return c.revokeDBObjectPrivilegesFromAllRoles(ctx, t.txn, obj, r)
	})
	metrics.ObserveDDL("revoke_privileges_all", err)
	return err
}

func (c *SysCatalog) lookupGrantee(roleName string, op string) (*role.GroupRole, error) {
	if !c.cfg.CheckPrivileges {
		return nil, apierrors.ErrPrivilegesOff
	}
	if roleName == proto.RootUserName {
		return nil, apierrors.Wrapf(apierrors.ErrRootUserPrivileges, "%s %s", op, roleName)
	}
	g := c.getRole(roleName)
	if g == nil {
		return nil, apierrors.Wrapf(apierrors.ErrRoleNotExist, "%s %s", op, roleName)
	}
	return g, nil
}

func (c *SysCatalog) grantDBObjectPrivileges(ctx context.Context, txn *store.Txn, roleName string,
	obj *privilege.DBObject, r privilege.KeyResolver,
) error {
	g, err := c.lookupGrantee(roleName, "grant privileges to")
	if err != nil {
		return err
	}
	if err = obj.LoadKey(c.resolver(r)); err != nil {
		return err
	}
	if err = g.GrantPrivileges(obj); err != nil {
		return err
	}
	trace.SpanFromContextSafe(ctx).Debugf("grant %x on %s to %s", obj.Privileges.Privileges, obj.Key, g.Name())
	return c.storage.PutObjectPermission(txn, g.Name(), g.IsUserPrivateRole(), g.FindDBObject(obj.Key))
}

func (c *SysCatalog) revokeDBObjectPrivileges(ctx context.Context, txn *store.Txn, roleName string,
	obj *privilege.DBObject, r privilege.KeyResolver,
) error {
	g, err := c.lookupGrantee(roleName, "revoke privileges from")
	if err != nil {
		return err
	}
	if err = obj.LoadKey(c.resolver(r)); err != nil {
		return err
	}
	return c.revokeFromRole(ctx, txn, g, obj)
}

func (c *SysCatalog) revokeFromRole(ctx context.Context, txn *store.Txn, g *role.GroupRole, obj *privilege.DBObject) error {
	left, err := g.RevokePrivileges(obj)
	if err != nil {
		return err
	}
	trace.SpanFromContextSafe(ctx).Debugf("revoke %x on %s from %s", obj.Privileges.Privileges, obj.Key, g.Name())
	if left.Privileges.HasAny() {
		return c.storage.PutObjectPermission(txn, g.Name(), g.IsUserPrivateRole(), left)
	}
	c.storage.DeleteObjectPermission(txn, g.Name(), obj.Key)
	return nil
}

func (c *SysCatalog) revokeDBObjectPrivilegesFromAllRoles(ctx context.Context, txn *store.Txn,
	obj *privilege.DBObject, r privilege.KeyResolver,
) error {
	if !c.cfg.CheckPrivileges {
		return nil
	}
	if err := obj.LoadKey(c.resolver(r)); err != nil {
		return err
	}
	switch obj.Key.ObjectType {
	case privilege.TableObject:
		obj.SetPrivileges(privilege.AllTable)
	case privilege.DashboardObject:
		obj.SetPrivileges(privilege.AllDashboard)
	case privilege.ViewObject:
		obj.SetPrivileges(privilege.AllView)
	default:
		obj.SetPrivileges(privilege.AllDatabase)
	}

	var holders []*role.GroupRole
	c.rangeRoles(func(g *role.GroupRole) bool {
		if g.FindDBObject(obj.Key) != nil {
			holders = append(holders, g)
		}
		return true
	})
	for _, g := range holders {
		if err := c.revokeFromRole(ctx, txn, g, obj); err != nil {
			return err
		}
	}
	return nil
}

// revokeAllInDB removes every grant any role holds in the database.
func (c *SysCatalog) revokeAllInDB(ctx context.Context, txn *store.Txn, dbID int32) error {
	var (
		holders []*role.GroupRole
		objects [][]*privilege.DBObject
	)
	c.rangeRoles(func(g *role.GroupRole) bool {
		var held []*privilege.DBObject
		for _, obj := range g.DBObjects() {
			if obj.Key.DBID == dbID {
				held = append(held, obj)
			}
		}
		if len(held) > 0 {
			holders = append(holders, g)
			objects = append(objects, held)
		}
		return true
	})
	for i, g := range holders {
		for _, obj := range objects[i] {
			if err := c.revokeFromRole(ctx, txn, g, obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetDBObjectPrivileges sets the privileges of obj to what the role holds on it.
func (c *SysCatalog) GetDBObjectPrivileges(roleName string, obj *privilege.DBObject, r privilege.KeyResolver) error {
	c.lock.RLock()
	defer c.lock.RUnlock()
	g, err := c.lookupGrantee(roleName, "show privileges of")
	if err != nil {
		return err
	}
	if err = obj.LoadKey(c.resolver(r)); err != nil {
		return err
	}
	g.GetPrivileges(obj)
	return nil
}

// CreateDBObject grants the creator of a new object every privilege of its type.
// Named objects are resolved against r when objectID is -1. The root user is skipped.
func (c *SysCatalog) CreateDBObject(ctx context.Context, user *proto.UserMetadata, name string,
	typ privilege.ObjectType, r privilege.KeyResolver, objectID int32,
) error {
	err := c.WithTxn(ctx, func(t *Txn) error {
		return c.createDBObject(ctx, t.txn, user, name, typ, r, objectID)
	})
	metrics.ObserveDDL("create_db_object", err)
	return err
}

func (c *SysCatalog) createDBObject(ctx context.Context, txn *store.Txn, user *proto.UserMetadata, name string,
	typ privilege.ObjectType, r privilege.KeyResolver, objectID int32,
) error {
	if !c.cfg.CheckPrivileges || user.UserName == proto.RootUserName {
		return nil
	}
	var obj *privilege.DBObject
	switch {
	case objectID == privilege.AllObjects:
		obj = privilege.NewDBObjectByName(name, typ)
	case typ == privilege.DatabaseObject:
		obj = privilege.NewDBObjectByID(typ, objectID, privilege.AllObjects)
	default:
		obj = privilege.NewDBObjectByID(typ, c.resolver(r).CurrentDB(), objectID)
	}
	obj.Name = name
	obj.Owner = user.UserID
	switch typ {
	case privilege.TableObject:
		obj.SetPrivileges(privilege.AllTable)
	case privilege.ViewObject:
		obj.SetPrivileges(privilege.AllView)
	case privilege.DashboardObject:
		obj.SetPrivileges(privilege.AllDashboard)
	default:
		obj.SetPrivileges(privilege.AllDatabase)
	}
	return c.grantDBObjectPrivileges(ctx, txn, user.UserName, obj, r)
}

// VerifyDBObjectOwnership reports whether user owns obj through its granted roles.
func (c *SysCatalog) VerifyDBObjectOwnership(user *proto.UserMetadata, obj *privilege.DBObject, r privilege.KeyResolver) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ur, ok := c.userRoles[user.UserID]
	if !ok {
		return false
	}
	if err := obj.LoadKey(c.resolver(r)); err != nil {
		return false
	}
	found := ur.FindDBObject(obj.Key)
	return found != nil && found.Owner == user.UserID
}

// PopulateRoleDBObjects grants every object to the private role of its owner.
// Owners without roles are skipped.
func (c *SysCatalog) PopulateRoleDBObjects(ctx context.Context, objects []*privilege.DBObject) error {
	return c.WithTxn(ctx, func(t *Txn) error {
		return c.populateRoleDBObjects(ctx, t.txn, objects)
	})
}

func (c *SysCatalog) populateRoleDBObjects(ctx context.Context, txn *store.Txn, objects []*privilege.DBObject) error {
	span := trace.SpanFromContextSafe(ctx)
	for _, obj := range objects {
		ur, ok := c.userRoles[obj.Owner]
		if !ok {
			continue
		}
		g := c.getRole(ur.Name())
		if g == nil {
			continue
		}
		if err := g.GrantPrivileges(obj); err != nil {
			return err
		}
		if err := c.storage.PutObjectPermission(txn, g.Name(), true, g.FindDBObject(obj.Key)); err != nil {
			return err
		}
		span.Debugf("object %s recorded for owner %s", obj.Key, g.Name())
	}
	return nil
}

// CheckPrivileges reports whether the user holds every privilege of every object.
// The keys of the objects must be loaded.
func (c *SysCatalog) CheckPrivileges(user *proto.UserMetadata, objects []*privilege.DBObject) bool {
	granted := c.checkObjects(user, objects, role.Role.CheckPrivileges)
	metrics.ObservePrivilegeCheck(granted)
	return granted
}

// HasAnyPrivileges reports whether the user holds some of the requested privileges
// on every object.
func (c *SysCatalog) HasAnyPrivileges(user *proto.UserMetadata, objects []*privilege.DBObject) bool {
	granted := c.checkObjects(user, objects, role.Role.HasAnyPrivileges)
	metrics.ObservePrivilegeCheck(granted)
	return granted
}

func (c *SysCatalog) CheckPrivilegesByName(userName string, objects []*privilege.DBObject) (bool, error) {
	user, err := c.GetMetadataForUser(userName)
	if err != nil {
		return false, err
	}
	return c.CheckPrivileges(user, objects), nil
}

func (c *SysCatalog) checkObjects(user *proto.UserMetadata, objects []*privilege.DBObject,
	check func(role.Role, *privilege.DBObject) bool,
) bool {
	if user.IsSuper {
		return true
	}
	c.lock.RLock()
	defer c.lock.RUnlock()
	ur, ok := c.userRoles[user.UserID]
	if !ok {
		return false
	}
	for _, obj := range objects {
		if !obj.KeyLoaded() || !check(ur, obj) {
			return false
		}
	}
	return true
}

// GrantPrivileges sets the legacy select and insert privileges of a user on a database.
func (c *SysCatalog) GrantPrivileges(ctx context.Context, userID, dbID int32, privs proto.Privileges) error {
	err := c.WithTxn(ctx, func(t *Txn) error {
		if _, ok := c.users[userID]; !ok {
			return apierrors.Wrapf(apierrors.ErrUserNotExist, "user id %d", userID)
		}
		if _, ok := c.dbs[dbID]; !ok {
			return apierrors.Wrapf(apierrors.ErrDBNotExist, "database id %d", dbID)
		}
		if err := c.storage.PutLegacyPrivileges(t.txn, userID, dbID, privs); err != nil {
			return err
		}
		c.legacy[legacyKey{userID: userID, dbID: dbID}] = privs
		return nil
	})
	metrics.ObserveDDL("grant_legacy_privileges", err)
	return err
}

// CheckLegacyPrivileges is the authorization check without RBAC, super users and the
// owner of the database always pass.
func (c *SysCatalog) CheckLegacyPrivileges(user *proto.UserMetadata, db *proto.DBMetadata, wants proto.Privileges) bool {
	if user.IsSuper || user.UserID == db.OwnerID {
		return true
	}
	c.lock.RLock()
	has, ok := c.legacy[legacyKey{userID: user.UserID, dbID: db.DBID}]
	c.lock.RUnlock()
	if !ok {
		return false
	}
	if wants.Select && !has.Select {
		return false
	}
	if wants.Insert && !has.Insert {
		return false
	}
	return true
}
