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
	"encoding/json"

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

var (
	roleKeyPrefix   = []byte("r")
	memberKeyPrefix = []byte("m")
)

type roleRecord struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
}

type memberRecord struct {
	RoleName string `json:"role_name"`
	UserName string `json:"user_name"`
}

type objectPermissionRecord struct {
	RoleName       string               `json:"role_name"`
	RoleIsUser     bool                 `json:"role_is_user"`
	DBID           int32                `json:"db_id"`
	ObjectID       int32                `json:"object_id"`
	PermissionType privilege.ObjectType `json:"permission_type"`
	Privileges     int64                `json:"privileges"`
	OwnerID        int32                `json:"owner_id"`
	ObjectName     string               `json:"object_name"`
}

type legacyPrivilegeRecord struct {
	UserID int32 `json:"user_id"`
	DBID   int32 `json:"db_id"`
	proto.Privileges
}

type storage struct {
	store         *store.Store
	keysGenerator *keysGenerator
}

func newStorage(s *store.Store) *storage {
	return &storage{store: s, keysGenerator: &keysGenerator{}}
}

func (s *storage) PutUser(txn *store.Txn, user *proto.UserMetadata) error {
	return s.store.Put(txn, store.CFUsers, s.keysGenerator.encodeUserKey(user.UserID), user)
}

func (s *storage) DeleteUser(txn *store.Txn, userID int32) {
	s.store.Delete(txn, store.CFUsers, s.keysGenerator.encodeUserKey(userID))
}

func (s *storage) ListUsers(ctx context.Context) (ret []*proto.UserMetadata, err error) {
	err = s.store.List(ctx, store.CFUsers, nil, func(key, value []byte) error {
		user := &proto.UserMetadata{}
		if err := json.Unmarshal(value, user); err != nil {
			return errors.Info(err, "decode user", string(key)).Detail(err)
		}
		ret = append(ret, user)
		return nil
	})
	return
}

func (s *storage) PutDatabase(txn *store.Txn, db *proto.DBMetadata) error {
	return s.store.Put(txn, store.CFDatabases, s.keysGenerator.encodeDBKey(db.DBID), db)
}

func (s *storage) DeleteDatabase(txn *store.Txn, dbID int32) {
	s.store.Delete(txn, store.CFDatabases, s.keysGenerator.encodeDBKey(dbID))
}

func (s *storage) ListDatabases(ctx context.Context) (ret []*proto.DBMetadata, err error) {
	err = s.store.List(ctx, store.CFDatabases, nil, func(key, value []byte) error {
		db := &proto.DBMetadata{}
		if err := json.Unmarshal(value, db); err != nil {
			return errors.Info(err, "decode database", string(key)).Detail(err)
		}
		ret = append(ret, db)
		return nil
	})
	return
}

func (s *storage) PutLegacyPrivileges(txn *store.Txn, userID, dbID int32, privs proto.Privileges) error {
	record := &legacyPrivilegeRecord{UserID: userID, DBID: dbID, Privileges: privs}
	return s.store.Put(txn, store.CFPrivileges, s.keysGenerator.encodeLegacyKey(userID, dbID), record)
}

func (s *storage) DeleteLegacyPrivileges(txn *store.Txn, userID, dbID int32) {
	s.store.Delete(txn, store.CFPrivileges, s.keysGenerator.encodeLegacyKey(userID, dbID))
}

func (s *storage) ListLegacyPrivileges(ctx context.Context) (ret []*legacyPrivilegeRecord, err error) {
	err = s.store.List(ctx, store.CFPrivileges, nil, func(key, value []byte) error {
		record := &legacyPrivilegeRecord{}
		if err := json.Unmarshal(value, record); err != nil {
			return errors.Info(err, "decode legacy privileges").Detail(err)
		}
		ret = append(ret, record)
		return nil
	})
	return
}

func (s *storage) PutRole(txn *store.Txn, name string, private bool) error {
	return s.store.Put(txn, store.CFRoles, s.keysGenerator.encodeRoleKey(name), &roleRecord{Name: name, Private: private})
}

func (s *storage) DeleteRole(txn *store.Txn, name string) {
	s.store.Delete(txn, store.CFRoles, s.keysGenerator.encodeRoleKey(name))
}

func (s *storage) ListRoles(ctx context.Context) (ret []*roleRecord, err error) {
	err = s.store.List(ctx, store.CFRoles, s.keysGenerator.encodeRoleKeyPrefix(), func(key, value []byte) error {
		record := &roleRecord{}
		if err := json.Unmarshal(value, record); err != nil {
			return errors.Info(err, "decode role").Detail(err)
		}
		ret = append(ret, record)
		return nil
	})
	return
}

func (s *storage) PutMember(txn *store.Txn, roleName, userName string) error {
	record := &memberRecord{RoleName: roleName, UserName: userName}
	return s.store.Put(txn, store.CFRoles, s.keysGenerator.encodeMemberKey(roleName, userName), record)
}

func (s *storage) DeleteMember(txn *store.Txn, roleName, userName string) {
	s.store.Delete(txn, store.CFRoles, s.keysGenerator.encodeMemberKey(roleName, userName))
}

func (s *storage) ListMembers(ctx context.Context) (ret []*memberRecord, err error) {
	err = s.store.List(ctx, store.CFRoles, s.keysGenerator.encodeMemberKeyPrefix(), func(key, value []byte) error {
		record := &memberRecord{}
		if err := json.Unmarshal(value, record); err != nil {
			return errors.Info(err, "decode role membership").Detail(err)
		}
		ret = append(ret, record)
		return nil
	})
	return
}

func (s *storage) PutObjectPermission(txn *store.Txn, roleName string, roleIsUser bool, obj *privilege.DBObject) error {
	record := &objectPermissionRecord{
		RoleName:       roleName,
		RoleIsUser:     roleIsUser,
		DBID:           obj.Key.DBID,
		ObjectID:       obj.Key.ObjectID,
		PermissionType: obj.Key.ObjectType,
		Privileges:     obj.Privileges.Privileges,
		OwnerID:        obj.Owner,
		ObjectName:     obj.Name,
	}
	return s.store.Put(txn, store.CFObjectPermissions, s.keysGenerator.encodeObjectPermissionKey(roleName, obj.Key), record)
}

func (s *storage) DeleteObjectPermission(txn *store.Txn, roleName string, key privilege.DBObjectKey) {
	s.store.Delete(txn, store.CFObjectPermissions, s.keysGenerator.encodeObjectPermissionKey(roleName, key))
}

func (s *storage) ListObjectPermissions(ctx context.Context) (ret []*objectPermissionRecord, err error) {
	err = s.store.List(ctx, store.CFObjectPermissions, nil, func(key, value []byte) error {
		record := &objectPermissionRecord{}
		if err := json.Unmarshal(value, record); err != nil {
			return errors.Info(err, "decode object permission").Detail(err)
		}
		ret = append(ret, record)
		return nil
	})
	return
}

type keysGenerator struct{}

func (k *keysGenerator) encodeUserKey(userID int32) []byte {
	return store.EncodeID(userID)
}

func (k *keysGenerator) encodeDBKey(dbID int32) []byte {
	return store.EncodeID(dbID)
}

func (k *keysGenerator) encodeLegacyKey(userID, dbID int32) []byte {
	return store.JoinKey(store.EncodeID(userID), store.EncodeID(dbID))
}

func (k *keysGenerator) encodeRoleKey(name string) []byte {
	return store.JoinKey(roleKeyPrefix, []byte(name))
}

func (k *keysGenerator) encodeRoleKeyPrefix() []byte {
	return store.KeyPrefix(roleKeyPrefix)
}

func (k *keysGenerator) encodeMemberKey(roleName, userName string) []byte {
	return store.JoinKey(memberKeyPrefix, []byte(roleName), []byte(userName))
}

func (k *keysGenerator) encodeMemberKeyPrefix() []byte {
	return store.KeyPrefix(memberKeyPrefix)
}

func (k *keysGenerator) encodeObjectPermissionKey(roleName string, key privilege.DBObjectKey) []byte {
	return store.JoinKey(
		[]byte(roleName),
		store.EncodeID(int32(key.ObjectType)),
		store.EncodeID(key.DBID),
		store.EncodeID(key.ObjectID),
	)
}
