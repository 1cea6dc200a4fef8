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
	"golang.org/x/crypto/bcrypt"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/metrics"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

// CreateUser adds a user. With RBAC on the user also gets a private role holding
// the default privileges on the system database.
func (c *SysCatalog) CreateUser(ctx context.Context, name, password string, isSuper bool) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.WithTxn(ctx, func(t *Txn) error {
		return c.createUser(ctx, t.txn, name, password, isSuper)
	})
	metrics.ObserveDDL("create_user", err)
	if err != nil {
		span.Warnf("create user %s failed: %s", name, err)
		return err
	}
	span.Infof("user %s created, super: %v", name, isSuper)
	return nil
}

func (c *SysCatalog) createUser(ctx context.Context, txn *store.Txn, name, password string, isSuper bool) error {
	if c.getUserByName(name) != nil {
		return apierrors.Wrapf(apierrors.ErrUserAlreadyExist, "user %s", name)
	}
	if c.cfg.CheckPrivileges && c.getRole(name) != nil {
		return apierrors.Wrapf(apierrors.ErrUserRoleNameClash, "user %s", name)
	}
	hash, err := c.hashPassword(password)
	if err != nil {
		return err
	}
	userID, err := c.idGen.AllocOne(ctx, txn, idgenerator.ScopeUser)
	if err != nil {
		return err
	}
	user := &proto.UserMetadata{UserID: userID, UserName: name, PasswordHash: hash, IsSuper: isSuper}
	if err = c.storage.PutUser(txn, user); err != nil {
		return err
	}
	c.putUser(user)

	if !c.cfg.CheckPrivileges {
		return nil
	}
	if err = c.createRole(ctx, txn, name, true); err != nil {
		return err
	}
	if err = c.grantDefaultPrivilegesToRole(ctx, txn, name, isSuper); err != nil {
		return err
	}
	return c.grantRole(ctx, txn, name, name)
}

func (c *SysCatalog) grantDefaultPrivilegesToRole(ctx context.Context, txn *store.Txn, name string, isSuper bool) error {
	obj := privilege.NewDBObjectByID(privilege.DatabaseObject, c.systemDB.DBID, privilege.AllObjects)
	obj.Name = c.systemDB.DBName
	obj.SetPrivileges(privilege.DefaultDatabase)
	if isSuper {
		obj.SetPrivileges(privilege.AllDatabase)
	}
	return c.grantDBObjectPrivileges(ctx, txn, name, obj, nil)
}

// DropUser removes the user, its private role, its role memberships and its legacy privileges.
func (c *SysCatalog) DropUser(ctx context.Context, name string) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.WithTxn(ctx, func(t *Txn) error {
		return c.dropUser(ctx, t.txn, name)
	})
	metrics.ObserveDDL("drop_user", err)
	if err != nil {
		span.Warnf("drop user %s failed: %s", name, err)
		return err
	}
	span.Infof("user %s dropped", name)
	return nil
}

func (c *SysCatalog) dropUser(ctx context.Context, txn *store.Txn, name string) error {
	user := c.getUserByName(name)
	if user == nil {
		return apierrors.Wrapf(apierrors.ErrUserNotExist, "user %s", name)
	}
	if user.UserID == proto.RootUserID {
		return apierrors.ErrDropRootUser
	}

	if c.cfg.CheckPrivileges {
		if g := c.getRole(name); g != nil && g.IsUserPrivateRole() {
			c.dropRole(txn, g)
		}
		if ur, ok := c.userRoles[user.UserID]; ok {
			for _, roleName := range ur.Roles() {
				c.storage.DeleteMember(txn, roleName, user.UserName)
			}
			ur.DetachAll()
			delete(c.userRoles, user.UserID)
		}
	}

	c.storage.DeleteUser(txn, user.UserID)
	for key := range c.legacy {
		if key.userID == user.UserID {
			c.storage.DeleteLegacyPrivileges(txn, key.userID, key.dbID)
			delete(c.legacy, key)
		}
	}
	delete(c.users, user.UserID)
	delete(c.userNames, user.UserName)
	return nil
}

// AlterUser changes the password and/or the super flag, nil leaves a field as is.
func (c *SysCatalog) AlterUser(ctx context.Context, userID int32, password *string, isSuper *bool) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.WithTxn(ctx, func(t *Txn) error {
		user, ok := c.users[userID]
		if !ok {
			return apierrors.Wrapf(apierrors.ErrUserNotExist, "user id %d", userID)
		}
		altered := *user
		if password != nil {
			hash, err := c.hashPassword(*password)
			if err != nil {
				return err
			}
			altered.PasswordHash = hash
		}
		if isSuper != nil {
			altered.IsSuper = *isSuper
		}
		if err := c.storage.PutUser(t.txn, &altered); err != nil {
			return err
		}
		c.putUser(&altered)
		return nil
	})
	metrics.ObserveDDL("alter_user", err)
	if err != nil {
		span.Warnf("alter user %d failed: %s", userID, err)
		return err
	}
	span.Infof("user %d altered", userID)
	return nil
}

func (c *SysCatalog) GetMetadataForUser(name string) (*proto.UserMetadata, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	user := c.getUserByName(name)
	if user == nil {
		return nil, apierrors.Wrapf(apierrors.ErrUserNotExist, "user %s", name)
	}
	ret := *user
	return &ret, nil
}

func (c *SysCatalog) GetMetadataForUserByID(userID int32) (*proto.UserMetadata, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.getMetadataForUserByID(userID)
}

func (c *SysCatalog) getMetadataForUserByID(userID int32) (*proto.UserMetadata, error) {
	user, ok := c.users[userID]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrUserNotExist, "user id %d", userID)
	}
	ret := *user
	return &ret, nil
}

// GetAllUserMetadata returns every user ordered by id.
func (c *SysCatalog) GetAllUserMetadata() []*proto.UserMetadata {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.collectUsers(func(*proto.UserMetadata) bool { return true })
}

// GetAllUserMetadataForDB returns the users whose private role holds a grant in the database.
func (c *SysCatalog) GetAllUserMetadataForDB(dbID int32) []*proto.UserMetadata {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.collectUsers(func(user *proto.UserMetadata) bool {
		g := c.getRole(user.UserName)
		return g != nil && g.IsUserPrivateRole() && g.HasGrantsInDB(dbID)
	})
}

func (c *SysCatalog) collectUsers(filter func(*proto.UserMetadata) bool) []*proto.UserMetadata {
	ret := make([]*proto.UserMetadata, 0, len(c.users))
	for _, user := range c.users {
		if !filter(user) {
			continue
		}
		copied := *user
		ret = append(ret, &copied)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].UserID < ret[j].UserID })
	return ret
}

// CheckPasswordForUser verifies password against the stored hash of the user.
func (c *SysCatalog) CheckPasswordForUser(password string, user *proto.UserMetadata) bool {
	c.lock.RLock()
	stored, ok := c.users[user.UserID]
	var hash string
	if ok {
		hash = stored.PasswordHash
	}
	c.lock.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
