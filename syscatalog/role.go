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
	"github.com/cubefs/catalogdb/role"
	"github.com/cubefs/catalogdb/store"
)

func (c *SysCatalog) CreateRole(ctx context.Context, name string, private bool) error {
	err := c.roleDDL(ctx, "create_role", func(txn *store.Txn) error {
		return c.createRole(ctx, txn, name, private)
	})
	if err == nil {
		trace.SpanFromContextSafe(ctx).Infof("role %s created, private: %v", name, private)
	}
	return err
}

func (c *SysCatalog) DropRole(ctx context.Context, name string) error {
	err := c.roleDDL(ctx, "drop_role", func(txn *store.Txn) error {
		g := c.getRole(name)
		if g == nil {
			return apierrors.Wrapf(apierrors.ErrRoleNotExist, "role %s", name)
		}
		c.dropRole(txn, g)
		return nil
	})
	if err == nil {
		trace.SpanFromContextSafe(ctx).Infof("role %s dropped", name)
	}
	return err
}

func (c *SysCatalog) GrantRole(ctx context.Context, roleName, userName string) error {
	err := c.roleDDL(ctx, "grant_role", func(txn *store.Txn) error {
		return c.grantRole(ctx, txn, roleName, userName)
	})
	if err == nil {
		trace.SpanFromContextSafe(ctx).Infof("role %s granted to %s", roleName, userName)
	}
	return err
}

func (c *SysCatalog) RevokeRole(ctx context.Context, roleName, userName string) error {
	err := c.roleDDL(ctx, "revoke_role", func(txn *store.Txn) error {
		return c.revokeRole(ctx, txn, roleName, userName)
	})
	if err == nil {
		trace.SpanFromContextSafe(ctx).Infof("role %s revoked from %s", roleName, userName)
	}
	return err
}

func (c *SysCatalog) roleDDL(ctx context.Context, op string, fn func(txn *store.Txn) error) error {
	if !c.cfg.CheckPrivileges {
		return apierrors.ErrPrivilegesOff
	}
	err := c.WithTxn(ctx, func(t *Txn) error {
		return fn(t.txn)
	})
	metrics.ObserveDDL(op, err)
	if err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("%s failed: %s", op, err)
	}
	return err
}

// createRole persists a placeholder grant of nothing on a database that does not
// exist, so that the role survives a restart before it is granted anything.
func (c *SysCatalog) createRole(ctx context.Context, txn *store.Txn, name string, private bool) error {
	if !private && c.getUserByName(name) != nil {
		return apierrors.Wrapf(apierrors.ErrUserRoleNameClash, "role %s", name)
	}
	if c.getRole(name) != nil {
		return apierrors.Wrapf(apierrors.ErrRoleAlreadyExist, "role %s", name)
	}
	g := role.NewGroupRole(name, private)
	c.putRole(g)
	if err := c.storage.PutRole(txn, name, private); err != nil {
		return err
	}

	placeholder := privilege.NewDBObjectByID(privilege.DatabaseObject, 0, privilege.AllObjects)
	if err := g.GrantPrivileges(placeholder); err != nil {
		return err
	}
	return c.storage.PutObjectPermission(txn, name, private, placeholder)
}

func (c *SysCatalog) dropRole(txn *store.Txn, g *role.GroupRole) {
	for _, u := range g.Users() {
		c.storage.DeleteMember(txn, g.Name(), u.Name())
	}
	for _, obj := range g.DBObjects() {
		c.storage.DeleteObjectPermission(txn, g.Name(), obj.Key)
	}
	for _, orphan := range g.Detach() {
		delete(c.userRoles, orphan.UserID())
	}
	c.deleteRole(g.Name())
	c.storage.DeleteRole(txn, g.Name())
}

func (c *SysCatalog) grantRole(ctx context.Context, txn *store.Txn, roleName, userName string) error {
	g := c.getRole(roleName)
	if g == nil {
		return apierrors.Wrapf(apierrors.ErrRoleNotExist, "grant role %s", roleName)
	}
	user := c.getUserByName(userName)
	if user == nil {
		return apierrors.Wrapf(apierrors.ErrUserNotExist, "grant role %s to %s", roleName, userName)
	}
	ur, ok := c.userRoles[user.UserID]
	if !ok {
		ur = role.NewUserRole(user.UserID, user.UserName)
		c.userRoles[user.UserID] = ur
	}
	if ur.HasRole(g.Name()) {
		return nil
	}
	ur.GrantRole(g)
	return c.storage.PutMember(txn, g.Name(), user.UserName)
}

func (c *SysCatalog) revokeRole(ctx context.Context, txn *store.Txn, roleName, userName string) error {
	g := c.getRole(roleName)
	if g == nil {
		return apierrors.Wrapf(apierrors.ErrRoleNotExist, "revoke role %s", roleName)
	}
	user := c.getUserByName(userName)
	if user == nil {
		return apierrors.Wrapf(apierrors.ErrUserNotExist, "revoke role %s from %s", roleName, userName)
	}
	ur, ok := c.userRoles[user.UserID]
	if !ok {
		return apierrors.Wrapf(apierrors.ErrRoleNotGranted, "role %s, user %s", roleName, userName)
	}
	if err := ur.RevokeRole(g); err != nil {
		return err
	}
	if ur.RoleCount() == 0 {
		delete(c.userRoles, user.UserID)
	}
	c.storage.DeleteMember(txn, g.Name(), user.UserName)
	return nil
}

// GetMetadataForRole returns a copy of the named role, or nil.
func (c *SysCatalog) GetMetadataForRole(name string) *role.GroupRole {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if g := c.getRole(name); g != nil {
		return g.Snapshot()
	}
	return nil
}

// GetMetadataForUserRole returns a copy of the roles granted to the user, or nil.
func (c *SysCatalog) GetMetadataForUserRole(userID int32) *role.UserRole {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if ur, ok := c.userRoles[userID]; ok {
		return ur.Snapshot()
	}
	return nil
}

func (c *SysCatalog) IsRoleGrantedToUser(userID int32, roleName string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.isRoleGrantedToUser(userID, roleName)
}

func (c *SysCatalog) isRoleGrantedToUser(userID int32, roleName string) bool {
	ur, ok := c.userRoles[userID]
	return ok && c.getRole(roleName) != nil && ur.HasRole(roleName)
}

// HasRole reports whether a role of the name exists and is private or not as asked.
func (c *SysCatalog) HasRole(name string, private bool) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	g := c.getRole(name)
	return g != nil && g.IsUserPrivateRole() == private
}

// GetRoles lists role names in canonical order. Private roles are skipped unless
// asked for, a non super user only sees the roles granted to it.
func (c *SysCatalog) GetRoles(includePrivate, isSuper bool, userID int32) []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var ret []string
	c.rangeRoles(func(g *role.GroupRole) bool {
		if !includePrivate && g.IsUserPrivateRole() {
			return true
		}
		if !isSuper && !c.isRoleGrantedToUser(userID, g.Name()) {
			return true
		}
		ret = append(ret, g.Name())
		return true
	})
	return ret
}

// GetRolesForDB lists the non private roles holding a grant in the database.
func (c *SysCatalog) GetRolesForDB(dbID int32) []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var ret []string
	c.rangeRoles(func(g *role.GroupRole) bool {
		if !g.IsUserPrivateRole() && g.HasGrantsInDB(dbID) {
			ret = append(ret, g.Name())
		}
		return true
	})
	return ret
}

func (c *SysCatalog) GetUserRoles(userID int32) []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if ur, ok := c.userRoles[userID]; ok {
		return ur.Roles()
	}
	return nil
}
