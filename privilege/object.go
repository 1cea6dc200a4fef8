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

package privilege

import (
	"fmt"

	apierrors "github.com/cubefs/catalogdb/errors"
)

type ObjectType int32

const (
	AbstractObject ObjectType = iota
	DatabaseObject
	TableObject
	DashboardObject
	ViewObject
)

func (t ObjectType) String() string {
	switch t {
	case DatabaseObject:
		return "database"
	case TableObject:
		return "table"
	case DashboardObject:
		return "dashboard"
	case ViewObject:
		return "view"
	default:
		return "abstract"
	}
}

// AllObjects is the object id meaning the database itself or every object of a type in it.
const AllObjects = int32(-1)

type DBObjectKey struct {
	ObjectType ObjectType `json:"type"`
	DBID       int32      `json:"db_id"`
	ObjectID   int32      `json:"object_id"`
}

func (k DBObjectKey) Less(o DBObjectKey) bool {
	if k.ObjectType != o.ObjectType {
		return k.ObjectType < o.ObjectType
	}
	if k.DBID != o.DBID {
		return k.DBID < o.DBID
	}
	return k.ObjectID < o.ObjectID
}

// TypeWide returns the key covering every object of k's type in k's database.
func (k DBObjectKey) TypeWide() DBObjectKey {
	return DBObjectKey{ObjectType: k.ObjectType, DBID: k.DBID, ObjectID: AllObjects}
}

func (k DBObjectKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.ObjectType, k.DBID, k.ObjectID)
}

// KeyResolver resolves object names against one database.
type KeyResolver interface {
	CurrentDB() int32
	TableID(name string) (int32, bool)
	DatabaseID(name string) (int32, bool)
}

type DBObject struct {
	Key        DBObjectKey      `json:"key"`
	Privileges AccessPrivileges `json:"privileges"`
	Owner      int32            `json:"owner"`
	Name       string           `json:"name"`
	Type       ObjectType       `json:"-"`

	keyLoaded bool
}

// NewDBObjectByName is resolved to its key with LoadKey.
func NewDBObjectByName(name string, typ ObjectType) *DBObject {
	return &DBObject{Name: name, Type: typ, Owner: -1}
}

// NewDBObjectByID points at a known object, ObjectID -1 covers the whole database or type.
func NewDBObjectByID(typ ObjectType, dbID, objectID int32) *DBObject {
	return &DBObject{
		Key:       DBObjectKey{ObjectType: typ, DBID: dbID, ObjectID: objectID},
		Type:      typ,
		Owner:     -1,
		keyLoaded: true,
	}
}

func NewDBObject(key DBObjectKey, privs AccessPrivileges, owner int32, name string) *DBObject {
	return &DBObject{
		Key:        key,
		Privileges: privs,
		Owner:      owner,
		Name:       name,
		Type:       key.ObjectType,
		keyLoaded:  true,
	}
}

func (o *DBObject) Clone() *DBObject {
	ret := *o
	return &ret
}

func (o *DBObject) SetPrivileges(p AccessPrivileges) *DBObject {
	o.Privileges = p
	return o
}

// LoadKey resolves the object key against r, it is a no-op once the key is known.
func (o *DBObject) LoadKey(r KeyResolver) error {
	if o.keyLoaded {
		return nil
	}
	switch o.Type {
	case DatabaseObject:
		dbID, ok := r.DatabaseID(o.Name)
		if !ok {
			return apierrors.Wrapf(apierrors.ErrDBNotExist, "database %s", o.Name)
		}
		o.Key = DBObjectKey{ObjectType: DatabaseObject, DBID: dbID, ObjectID: AllObjects}
	case TableObject, ViewObject:
		tableID, ok := r.TableID(o.Name)
		if !ok {
			return apierrors.Wrapf(apierrors.ErrTableNotExist, "%s %s", o.Type, o.Name)
		}
		o.Key = DBObjectKey{ObjectType: o.Type, DBID: r.CurrentDB(), ObjectID: tableID}
	case DashboardObject:
		o.Key = DBObjectKey{ObjectType: DashboardObject, DBID: r.CurrentDB(), ObjectID: o.Key.ObjectID}
		if o.Key.ObjectID == 0 {
			o.Key.ObjectID = AllObjects
		}
	default:
		return apierrors.Wrapf(apierrors.ErrInvalidArgument, "unknown object type %d", o.Type)
	}
	o.keyLoaded = true
	return nil
}

// KeyLoaded reports whether the key no longer needs resolving.
func (o *DBObject) KeyLoaded() bool {
	return o.keyLoaded
}
