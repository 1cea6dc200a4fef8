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
	"sort"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/util"
)

// Role is implemented by *GroupRole and *UserRole only.
type Role interface {
	Name() string
	IsUserPrivateRole() bool
	GrantPrivileges(obj *privilege.DBObject) error
	RevokePrivileges(obj *privilege.DBObject) (*privilege.DBObject, error)
	HasAnyPrivileges(obj *privilege.DBObject) bool
	CheckPrivileges(obj *privilege.DBObject) bool
	FindDBObject(key privilege.DBObjectKey) *privilege.DBObject
	// GetPrivileges sets obj's privileges to the bits held for its key.
	GetPrivileges(obj *privilege.DBObject) bool
	Roles() []string
}

// CanonicalName is the case insensitive index key of a role or user name.
func CanonicalName(name string) string {
	return util.ToUpper(name)
}

// GroupRole holds privileges, either as a named role or as the private role of a user.
type GroupRole struct {
	name    string
	private bool
	objects map[privilege.DBObjectKey]*privilege.DBObject
	users   map[*UserRole]struct{}
}

func NewGroupRole(name string, private bool) *GroupRole {
	return &GroupRole{
		name:    name,
		private: private,
		objects: make(map[privilege.DBObjectKey]*privilege.DBObject),
		users:   make(map[*UserRole]struct{}),
	}
}

func (r *GroupRole) Name() string {
	return r.name
}

func (r *GroupRole) IsUserPrivateRole() bool {
	return r.private
}

func (r *GroupRole) GrantPrivileges(obj *privilege.DBObject) error {
	if held, ok := r.objects[obj.Key]; ok {
		held.Privileges.Add(obj.Privileges)
		return nil
	}
	r.objects[obj.Key] = privilege.NewDBObject(obj.Key, obj.Privileges, obj.Owner, obj.Name)
	return nil
}

// RevokePrivileges returns what is left for the key, an emptied entry is removed.
func (r *GroupRole) RevokePrivileges(obj *privilege.DBObject) (*privilege.DBObject, error) {
	held, ok := r.objects[obj.Key]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrObjectNotExist, "role %s holds nothing on %s", r.name, obj.Key)
	}
	held.Privileges.Remove(obj.Privileges)
	ret := held.Clone()
	if !held.Privileges.HasAny() {
		delete(r.objects, obj.Key)
	}
	return ret, nil
}

func (r *GroupRole) HasAnyPrivileges(obj *privilege.DBObject) bool {
	held, ok := r.objects[obj.Key]
	if !ok {
		return false
	}
	return hasAny(held.Privileges, obj.Privileges)
}

func (r *GroupRole) CheckPrivileges(obj *privilege.DBObject) bool {
	held, ok := r.objects[obj.Key]
	if !ok {
		return false
	}
	return held.Privileges.HasAll(obj.Privileges)
}

func (r *GroupRole) FindDBObject(key privilege.DBObjectKey) *privilege.DBObject {
	if held, ok := r.objects[key]; ok {
		return held.Clone()
	}
	return nil
}

func (r *GroupRole) GetPrivileges(obj *privilege.DBObject) bool {
	held, ok := r.objects[obj.Key]
	if !ok {
		obj.Privileges = privilege.None
		return false
	}
	obj.Privileges = held.Privileges
	return true
}

func (r *GroupRole) Roles() []string {
	return nil
}

// DBObjects returns the held objects in key order.
func (r *GroupRole) DBObjects() []*privilege.DBObject {
	ret := make([]*privilege.DBObject, 0, len(r.objects))
	for _, obj := range r.objects {
		ret = append(ret, obj.Clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Key.Less(ret[j].Key) })
	return ret
}

// HasGrantsInDB reports whether any held object belongs to the database.
func (r *GroupRole) HasGrantsInDB(dbID int32) bool {
	for key := range r.objects {
		if key.DBID == dbID {
			return true
		}
	}
	return false
}

// Users returns the members in no particular order.
func (r *GroupRole) Users() []*UserRole {
	ret := make([]*UserRole, 0, len(r.users))
	for u := range r.users {
		ret = append(ret, u)
	}
	return ret
}

// Detach removes the role from every member and returns the members left without roles.
func (r *GroupRole) Detach() (orphans []*UserRole) {
	for u := range r.users {
		delete(u.groups, CanonicalName(r.name))
		if len(u.groups) == 0 {
			orphans = append(orphans, u)
		}
	}
	r.users = make(map[*UserRole]struct{})
	return
}

// Snapshot copies the role without its members.
func (r *GroupRole) Snapshot() *GroupRole {
	ret := NewGroupRole(r.name, r.private)
	for key, obj := range r.objects {
		ret.objects[key] = obj.Clone()
	}
	return ret
}

// UserRole is the per user view over the group roles granted to the user.
type UserRole struct {
	userID   int32
	userName string
	groups   map[string]*GroupRole
}

func NewUserRole(userID int32, userName string) *UserRole {
	return &UserRole{
		userID:   userID,
		userName: userName,
		groups:   make(map[string]*GroupRole),
	}
}

func (u *UserRole) Name() string {
	return u.userName
}

func (u *UserRole) UserID() int32 {
	return u.userID
}

func (u *UserRole) IsUserPrivateRole() bool {
	return false
}

func (u *UserRole) GrantPrivileges(obj *privilege.DBObject) error {
	return apierrors.Wrapf(apierrors.ErrRoleNotUserRole, "grant to user role %s", u.userName)
}

func (u *UserRole) RevokePrivileges(obj *privilege.DBObject) (*privilege.DBObject, error) {
	return nil, apierrors.Wrapf(apierrors.ErrRoleNotUserRole, "revoke from user role %s", u.userName)
}

// closure is the union of the bits every granted role holds for key and for
// the type wide key of key's database.
func (u *UserRole) closure(key privilege.DBObjectKey) (privilege.AccessPrivileges, bool) {
	var (
		ret   privilege.AccessPrivileges
		found bool
	)
	wide := key.TypeWide()
	for _, g := range u.groups {
		if held, ok := g.objects[key]; ok {
			ret.Add(held.Privileges)
			found = true
		}
		if wide == key {
			continue
		}
		if held, ok := g.objects[wide]; ok {
			ret.Add(held.Privileges)
			found = true
		}
	}
	return ret, found
}

func (u *UserRole) HasAnyPrivileges(obj *privilege.DBObject) bool {
	held, found := u.closure(obj.Key)
	if !found {
		return false
	}
	return hasAny(held, obj.Privileges)
}

func (u *UserRole) CheckPrivileges(obj *privilege.DBObject) bool {
	held, found := u.closure(obj.Key)
	if !found {
		return false
	}
	return held.HasAll(obj.Privileges)
}

// FindDBObject merges the exact key entries of all granted roles, the owner
// comes from the private role when it holds the key.
func (u *UserRole) FindDBObject(key privilege.DBObjectKey) *privilege.DBObject {
	var ret *privilege.DBObject
	for _, name := range u.Roles() {
		g := u.groups[CanonicalName(name)]
		held, ok := g.objects[key]
		if !ok {
			continue
		}
		if ret == nil {
			ret = held.Clone()
			continue
		}
		ret.Privileges.Add(held.Privileges)
		if g.private {
			ret.Owner = held.Owner
		}
	}
	return ret
}

func (u *UserRole) GetPrivileges(obj *privilege.DBObject) bool {
	held, found := u.closure(obj.Key)
	obj.Privileges = held
	return found
}

// Roles returns the names of the granted roles, sorted.
func (u *UserRole) Roles() []string {
	ret := make([]string, 0, len(u.groups))
	for _, g := range u.groups {
		ret = append(ret, g.name)
	}
	sort.Strings(ret)
	return ret
}

// HasRole reports whether the role, private or not, is granted.
func (u *UserRole) HasRole(name string) bool {
	_, ok := u.groups[CanonicalName(name)]
	return ok
}

// GrantRole is a no-op when the role is already granted.
func (u *UserRole) GrantRole(g *GroupRole) {
	u.groups[CanonicalName(g.name)] = g
	g.users[u] = struct{}{}
}

func (u *UserRole) RevokeRole(g *GroupRole) error {
	key := CanonicalName(g.name)
	if _, ok := u.groups[key]; !ok {
		return apierrors.Wrapf(apierrors.ErrRoleNotGranted, "role %s, user %s", g.name, u.userName)
	}
	delete(u.groups, key)
	delete(g.users, u)
	return nil
}

// RoleCount is the number of granted roles, a user role without any is destroyed.
func (u *UserRole) RoleCount() int {
	return len(u.groups)
}

// DetachAll revokes every granted role.
func (u *UserRole) DetachAll() {
	for key, g := range u.groups {
		delete(g.users, u)
		delete(u.groups, key)
	}
}

// Snapshot copies the user role together with copies of its granted roles.
func (u *UserRole) Snapshot() *UserRole {
	ret := NewUserRole(u.userID, u.userName)
	for _, g := range u.groups {
		ret.GrantRole(g.Snapshot())
	}
	return ret
}

func hasAny(held, requested privilege.AccessPrivileges) bool {
	if !requested.HasAny() {
		return held.HasAny()
	}
	return held.Overlaps(requested)
}

// Describe names the variant of r.
func Describe(r Role) string {
	switch r.(type) {
	case *GroupRole:
		if r.IsUserPrivateRole() {
			return "private role " + r.Name()
		}
		return "role " + r.Name()
	case *UserRole:
		return "user role " + r.Name()
	default:
		return "unknown role"
	}
}
