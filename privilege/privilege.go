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

// database privileges
const (
	CreateDatabase = int64(1) << iota
	DropDatabase
	ViewSQLEditor
	AccessDatabase
)

// table privileges
const (
	CreateTable = int64(1) << iota
	DropTable
	SelectFromTable
	InsertIntoTable
	UpdateInTable
	DeleteFromTable
	TruncateTable
	AlterTable
)

// dashboard privileges
const (
	CreateDashboard = int64(1) << iota
	DeleteDashboard
	ViewDashboard
	EditDashboard
)

// view privileges
const (
	CreateView = int64(1) << iota
	DropView
	SelectFromView
	InsertIntoView
	UpdateInView
	DeleteFromView
)

const allBits = int64(-1)

// AccessPrivileges is a capability bitset. The meaning of a bit depends on the
// type of the object it is attached to.
type AccessPrivileges struct {
	Privileges int64 `json:"privileges"`
}

var (
	None = AccessPrivileges{}

	AllDatabase  = AccessPrivileges{Privileges: allBits}
	AllTable     = AccessPrivileges{Privileges: allBits}
	AllDashboard = AccessPrivileges{Privileges: allBits}
	AllView      = AccessPrivileges{Privileges: allBits}

	// equivalents of a legacy select and insert grant
	AllTableMigrate     = AccessPrivileges{Privileges: SelectFromTable | InsertIntoTable}
	AllDashboardMigrate = AccessPrivileges{Privileges: ViewDashboard | EditDashboard}
	AllViewMigrate      = AccessPrivileges{Privileges: SelectFromView | InsertIntoView}

	DefaultDatabase = AccessPrivileges{Privileges: AccessDatabase | ViewSQLEditor}

	SelectTable    = AccessPrivileges{Privileges: SelectFromTable}
	InsertTable    = AccessPrivileges{Privileges: InsertIntoTable}
	ViewDashboards = AccessPrivileges{Privileges: ViewDashboard}
)

func New(bits int64) AccessPrivileges {
	return AccessPrivileges{Privileges: bits}
}

// Add grants every bit of p.
func (a *AccessPrivileges) Add(p AccessPrivileges) {
	a.Privileges |= p.Privileges
}

// Remove revokes every bit of p.
func (a *AccessPrivileges) Remove(p AccessPrivileges) {
	a.Privileges &^= p.Privileges
}

func (a *AccessPrivileges) Reset() {
	a.Privileges = 0
}

func (a AccessPrivileges) HasAny() bool {
	return a.Privileges != 0
}

// HasAll reports whether every bit of required is held.
func (a AccessPrivileges) HasAll(required AccessPrivileges) bool {
	return a.Privileges&required.Privileges == required.Privileges
}

// Overlaps reports whether a and p share at least one bit.
func (a AccessPrivileges) Overlaps(p AccessPrivileges) bool {
	return a.Privileges&p.Privileges != 0
}
