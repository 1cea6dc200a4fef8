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

const (
	RootUserID          = int32(0)
	RootUserName        = "mapd"
	RootPasswordDefault = "HyperInteractive"
	SystemDBName        = "mapd"

	// temporary objects never reach the store, their ids start far above persisted ones
	TempTableStartID = int32(1 << 30)
	TempDictStartID  = int32(1 << 30)

	PhysicalTableNameTag = "_shard_#"
	RowIDColumnName      = "rowid"
	RowIDVirtualExpr     = "MAPD_FRAG_ID * MAPD_ROWS_PER_FRAG + MAPD_FRAG_ROW_ID"
	DeletedColumnName    = "$deleted$"

	DefaultFragPageSize = int32(1 << 20)
	LegacyFragPageSize  = int32(2097152)
	DefaultMaxFragRows  = int32(32000000)
	DefaultMaxChunkSize = int64(1073741824)
	DefaultMaxRows      = int64(1<<62 - 1)
	DefaultDictNBits    = int32(32)

	InitialVersion = int32(1)
	TimeLayout     = "2006-01-02T15:04:05Z"
)

type (
	UserID  = int32
	DBID    = int32
	TableID = int32
	DictID  = int32
)

type MemoryLevel int32

const (
	DiskLevel MemoryLevel = iota
	CPULevel
	GPULevel
)

func (l MemoryLevel) String() string {
	switch l {
	case DiskLevel:
		return "disk"
	case CPULevel:
		return "cpu"
	case GPULevel:
		return "gpu"
	default:
		return "unknown"
	}
}

// ChunkKey addresses storage chunks as {dbId, tableId, columnId, fragmentId}, any prefix of it selects a range.
type ChunkKey []int32
