// Copyright 2023 The Cuber Authors.
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


package kvstore

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble/vfs"
)

const (
	defaultCF = "default"

	RocksdbLsmKVType = LsmKVType("rocksdb")
	PebbleLsmKVType  = LsmKVType("pebble")
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrKVTypeNotFound = errors.New("kv type not found")
	ErrPathEmpty      = errors.New("path is empty")
)

type (
	CF        string
	LsmKVType string

	// Store is an ordered key value engine split into column families.
	// Writes only go through batches so a catalog mutation lands atomically.
	Store interface {
		GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error)
		// List iterates the keys of col starting with prefix, a nil prefix lists the whole column.
		List(ctx context.Context, col CF, prefix []byte) ListReader
		NewWriteBatch() WriteBatch
		Write(ctx context.Context, batch WriteBatch) error
		Close()
	}
	ListReader interface {
		// ReadNextCopy returns a nil key once the iteration is exhausted.
		ReadNextCopy() (key []byte, value []byte, err error)
		Close()
	}
	WriteBatch interface {
		Put(col CF, key, value []byte)
		Delete(col CF, key []byte)
		// DeleteRange removes every key in [startKey, endKey).
		DeleteRange(col CF, startKey, endKey []byte)
		Count() int
		Close()
	}

	Option struct {
		Sync                 bool   `json:"sync"`
		DisableWal           bool   `json:"disable_wal"`
		ColumnFamily         []CF   `json:"column_family"`
		CreateIfMissing      bool   `json:"create_if_missing"`
		BlockSize            int    `json:"block_size"`
		BlockCache           uint64 `json:"block_cache"`
		MaxOpenFiles         int    `json:"max_open_files"`
		MaxWriteBufferNumber int    `json:"max_write_buffer_number"`
		WriteBufferSize      int    `json:"write_buffer_size"`
		// FS overrides the filesystem of the pebble backend, e.g. vfs.NewMem()
		FS vfs.FS `json:"-"`
	}
)

func NewKVStore(ctx context.Context, path string, lsmType LsmKVType, option *Option) (Store, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}
	switch lsmType {
	case RocksdbLsmKVType:
		return newRocksdb(ctx, path, option)
	case PebbleLsmKVType:
		return newPebble(ctx, path, option)
	default:
		return nil, ErrKVTypeNotFound
	}
}

func (cf CF) String() string {
	return string(cf)
}

// PrefixSuccessor returns the smallest key greater than every key with the prefix,
// nil when no such key exists.
func PrefixSuccessor(prefix []byte) []byte {
	ret := append([]byte{}, prefix...)
	for i := len(ret) - 1; i >= 0; i-- {
		ret[i]++
		if ret[i] != 0 {
			return ret[:i+1]
		}
	}
	return nil
}
