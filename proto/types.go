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

package proto

type UserMetadata struct {
	UserID       int32  `json:"id"`
	UserName     string `json:"name"`
	PasswordHash string `json:"password_hash"`
	IsSuper      bool   `json:"is_super"`
}

type DBMetadata struct {
	DBID    int32  `json:"id"`
	DBName  string `json:"name"`
	OwnerID int32  `json:"owner_id"`
}

// Privileges is the legacy per (user, database) privilege pair used when RBAC is off.
type Privileges struct {
	Super  bool `json:"-"`
	Select bool `json:"select"`
	Insert bool `json:"insert"`
}

type TableDescriptor struct {
	TableID          int32       `json:"id"`
	TableName        string      `json:"name"`
	UserID           int32       `json:"owner_id"`
	NColumns         int32       `json:"ncolumns"`
	IsView           bool        `json:"is_view"`
	ViewSQL          string      `json:"-"`
	FragType         int32       `json:"frag_type"`
	MaxFragRows      int32       `json:"max_frag_rows"`
	MaxChunkSize     int64       `json:"max_chunk_size"`
	FragPageSize     int32       `json:"frag_page_size"`
	MaxRows          int64       `json:"max_rows"`
	Partitions       string      `json:"partitions"`
	ShardedColumnID  int32       `json:"shard_column_id"`
	Shard            int32       `json:"shard"`
	NShards          int32       `json:"num_shards"`
	KeyMetainfo      string      `json:"key_metainfo"`
	HasDeletedCol    bool        `json:"-"`
	PersistenceLevel MemoryLevel `json:"-"`
	Version          int32       `json:"version"`
}

func (td *TableDescriptor) Clone() *TableDescriptor {
	ret := *td
	return &ret
}

func (td *TableDescriptor) IsTemporary() bool {
	return td.PersistenceLevel == CPULevel
}

type ColumnDescriptor struct {
	TableID      int32       `json:"table_id"`
	ColumnID     int32       `json:"id"`
	ColumnName   string      `json:"name"`
	ColumnType   SQLTypeInfo `json:"type"`
	IsSystemCol  bool        `json:"is_system"`
	IsVirtualCol bool        `json:"is_virtual"`
	VirtualExpr  string      `json:"virtual_expr"`
	IsDeletedCol bool        `json:"is_deleted"`
}

func (cd *ColumnDescriptor) Clone() *ColumnDescriptor {
	ret := *cd
	return &ret
}

type DictRef struct {
	DBID   int32 `json:"db_id"`
	DictID int32 `json:"dict_id"`
}

type DictDescriptor struct {
	DictRef        DictRef `json:"ref"`
	DictName       string  `json:"name"`
	DictNBits      int32   `json:"nbits"`
	DictIsShared   bool    `json:"is_shared"`
	Refcount       int32   `json:"refcount"`
	DictFolderPath string  `json:"-"`
	DictIsTemp     bool    `json:"-"`
	Version        int32   `json:"version"`
}

func (dd *DictDescriptor) Clone() *DictDescriptor {
	ret := *dd
	return &ret
}

// SharedDictionaryDef declares that Column reuses the dictionary of ForeignTable.ForeignColumn.
type SharedDictionaryDef struct {
	Column        string
	ForeignTable  string
	ForeignColumn string
}

type DashboardDescriptor struct {
	ViewID       int32  `json:"id"`
	ViewName     string `json:"name"`
	UserID       int32  `json:"owner_id"`
	ViewState    string `json:"state"`
	ImageHash    string `json:"image_hash"`
	UpdateTime   string `json:"update_time"`
	ViewMetadata string `json:"metadata"`
}

func (vd *DashboardDescriptor) Clone() *DashboardDescriptor {
	ret := *vd
	return &ret
}

type LinkDescriptor struct {
	LinkID       int32  `json:"id"`
	UserID       int32  `json:"owner_id"`
	Link         string `json:"link"`
	ViewState    string `json:"state"`
	ViewMetadata string `json:"metadata"`
	UpdateTime   string `json:"update_time"`
}

func (ld *LinkDescriptor) Clone() *LinkDescriptor {
	ret := *ld
	return &ret
}
