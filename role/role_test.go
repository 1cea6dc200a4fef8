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

package role

import (
	"testing"

	"github.com/stretchr/testify/require"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/privilege"
)

func tableKey(db, table int32) privilege.DBObjectKey {
	return privilege.DBObjectKey{ObjectType: privilege.TableObject, DBID: db, ObjectID: table}
}

func TestGroupRole_GrantRevoke(t *testing.T) {
	r := NewGroupRole("analysts", false)
	key := tableKey(1, 5)

	require.NoError(t, r.GrantPrivileges(privilege.NewDBObject(key, privilege.SelectTable, 2, "t5")))
	require.NoError(t, r.GrantPrivileges(privilege.NewDBObject(key, privilege.InsertTable, 3, "t5")))
	obj := r.FindDBObject(key)
	require.NotNil(t, obj)
	require.Equal(t, int32(2), obj.Owner)
	require.True(t, obj.Privileges.HasAll(privilege.AllTableMigrate))

	check := privilege.NewDBObject(key, privilege.SelectTable, -1, "")
	require.True(t, r.CheckPrivileges(check))
	require.True(t, r.HasAnyPrivileges(check))

	left, err := r.RevokePrivileges(privilege.NewDBObject(key, privilege.SelectTable, -1, ""))
	require.NoError(t, err)
	require.Equal(t, privilege.InsertTable, left.Privileges)
	require.False(t, r.CheckPrivileges(check))

	left, err = r.RevokePrivileges(privilege.NewDBObject(key, privilege.InsertTable, -1, ""))
	require.NoError(t, err)
	require.False(t, left.Privileges.HasAny())
	require.Nil(t, r.FindDBObject(key))
	require.Empty(t, r.DBObjects())

	_, err = r.RevokePrivileges(privilege.NewDBObject(key, privilege.InsertTable, -1, ""))
	require.ErrorIs(t, err, apierrors.ErrNotFound)

	// absent keys fail closed
	require.False(t, r.CheckPrivileges(privilege.NewDBObject(tableKey(1, 6), privilege.None, -1, "")))
}

func TestUserRole_Closure(t *testing.T) {
	private := NewGroupRole("alice", true)
	group := NewGroupRole("readers", false)
	u := NewUserRole(1, "alice")
	u.GrantRole(private)
	u.GrantRole(group)
	u.GrantRole(group)
	require.Equal(t, []string{"alice", "readers"}, u.Roles())
	require.True(t, u.HasRole("READERS"))

	require.NoError(t, group.GrantPrivileges(privilege.NewDBObject(tableKey(1, privilege.AllObjects), privilege.SelectTable, 0, "")))
	require.NoError(t, private.GrantPrivileges(privilege.NewDBObject(tableKey(1, 5), privilege.InsertTable, 1, "t5")))

	selectT5 := privilege.NewDBObject(tableKey(1, 5), privilege.SelectTable, -1, "")
	insertT5 := privilege.NewDBObject(tableKey(1, 5), privilege.InsertTable, -1, "")
	both := privilege.NewDBObject(tableKey(1, 5), privilege.AllTableMigrate, -1, "")
	require.True(t, u.CheckPrivileges(selectT5))
	require.True(t, u.CheckPrivileges(insertT5))
	require.True(t, u.CheckPrivileges(both))

	// type wide grants only cover their own database
	require.False(t, u.CheckPrivileges(privilege.NewDBObject(tableKey(2, 5), privilege.SelectTable, -1, "")))
	require.True(t, u.CheckPrivileges(privilege.NewDBObject(tableKey(1, 8), privilege.SelectTable, -1, "")))

	obj := u.FindDBObject(tableKey(1, 5))
	require.NotNil(t, obj)
	require.Equal(t, int32(1), obj.Owner)

	require.Error(t, u.GrantPrivileges(selectT5))
	_, err := u.RevokePrivileges(selectT5)
	require.ErrorIs(t, err, apierrors.ErrInvalidArgument)

	require.NoError(t, u.RevokeRole(group))
	require.False(t, u.CheckPrivileges(selectT5))
	require.ErrorIs(t, u.RevokeRole(group), apierrors.ErrRoleNotGranted)
	require.Equal(t, 1, u.RoleCount())
}

func TestGroupRole_Detach(t *testing.T) {
	group := NewGroupRole("readers", false)
	a := NewUserRole(1, "a")
	b := NewUserRole(2, "b")
	a.GrantRole(group)
	b.GrantRole(group)
	b.GrantRole(NewGroupRole("b", true))
	require.Len(t, group.Users(), 2)

	orphans := group.Detach()
	require.Len(t, orphans, 1)
	require.Equal(t, "a", orphans[0].Name())
	require.Empty(t, group.Users())
	require.False(t, b.HasRole("readers"))
	require.Equal(t, 1, b.RoleCount())

	require.Equal(t, "private role b", Describe(NewGroupRole("b", true)))
	require.Equal(t, "user role a", Describe(a))
}

func TestUserRole_Snapshot(t *testing.T) {
	g := NewGroupRole("bob", true)
	require.NoError(t, g.GrantPrivileges(privilege.NewDBObject(tableKey(1, 5), privilege.SelectTable, 1, "t5")))
	u := NewUserRole(1, "bob")
	u.GrantRole(g)

	snap := u.Snapshot()
	require.Equal(t, []string{"bob"}, snap.Roles())
	require.True(t, snap.CheckPrivileges(privilege.NewDBObject(tableKey(1, 5), privilege.SelectTable, -1, "")))

	require.NoError(t, g.GrantPrivileges(privilege.NewDBObject(tableKey(1, 5), privilege.InsertTable, 1, "t5")))
	require.False(t, snap.CheckPrivileges(privilege.NewDBObject(tableKey(1, 5), privilege.InsertTable, -1, "")))
	require.Len(t, g.Users(), 1)
}
