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

package catalog

import (
	"context"

	"github.com/spf13/afero"

	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/syscatalog"
)

type Config struct {
	// keep rowid as a stored column instead of computing it
	MaterializeRowID bool `json:"materialize_rowid"`

	DataMgr     DataMgr           `json:"-"`
	DictClient  StringDictClient  `json:"-"`
	DictOpener  DictionaryOpener  `json:"-"`
	Notifier    MetadataNotifier  `json:"-"`
	Fragmenters FragmenterFactory `json:"-"`
	// dictionary folders live here, the os filesystem by default
	Fs afero.Fs `json:"-"`
}

func (cfg *Config) init() {
	if cfg.DataMgr == nil {
		cfg.DataMgr = NopDataMgr{}
	}
	if cfg.DictOpener == nil {
		cfg.DictOpener = NopDictionaryOpener{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Fragmenters == nil {
		cfg.Fragmenters = NopFragmenterFactory{}
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
}

// DataMgr is the storage engine holding the chunks of every table.
type DataMgr interface {
	syscatalog.ChunkDeleter
	Checkpoint(ctx context.Context, dbID, tableID int32) error
	RemoveTableRelatedDS(ctx context.Context, dbID, tableID int32) error
	GetTableEpoch(ctx context.Context, dbID, tableID int32) (int32, error)
	SetTableEpoch(ctx context.Context, dbID, tableID, epoch int32) error
}

// StringDictClient talks to the remote string dictionary service, nil when
// dictionaries are opened from their folders.
type StringDictClient interface {
	Create(ctx context.Context, ref proto.DictRef, isTemp bool) error
	Drop(ctx context.Context, ref proto.DictRef) error
}

type StringDictionary interface {
	Close()
}

type DictionaryOpener interface {
	Open(ctx context.Context, folderPath string, isTemp bool) (StringDictionary, error)
}

type MetadataNotifier = syscatalog.MetadataNotifier

type Fragmenter interface {
	Close()
}

// FragmenterFactory builds the fragmenter of a table from its chunk key prefix
// {dbId, tableId} and all of its columns.
type FragmenterFactory interface {
	NewFragmenter(ctx context.Context, prefix proto.ChunkKey, columns []*proto.ColumnDescriptor,
		td *proto.TableDescriptor) (Fragmenter, error)
}

// NopDataMgr keeps no chunks, every epoch is 0.
type NopDataMgr struct{}

func (NopDataMgr) DeleteChunksWithPrefix(context.Context, proto.ChunkKey, proto.MemoryLevel) error {
	return nil
}

func (NopDataMgr) Checkpoint(context.Context, int32, int32) error { return nil }

func (NopDataMgr) RemoveTableRelatedDS(context.Context, int32, int32) error { return nil }

func (NopDataMgr) GetTableEpoch(context.Context, int32, int32) (int32, error) { return 0, nil }

func (NopDataMgr) SetTableEpoch(context.Context, int32, int32, int32) error { return nil }

type NopNotifier struct{}

func (NopNotifier) UpdateMetadata(context.Context, string, string) {}

type nopDictionary struct{}

func (nopDictionary) Close() {}

type NopDictionaryOpener struct{}

func (NopDictionaryOpener) Open(context.Context, string, bool) (StringDictionary, error) {
	return nopDictionary{}, nil
}

type nopFragmenter struct{}

func (nopFragmenter) Close() {}

type NopFragmenterFactory struct{}

func (NopFragmenterFactory) NewFragmenter(context.Context, proto.ChunkKey, []*proto.ColumnDescriptor,
	*proto.TableDescriptor,
) (Fragmenter, error) {
	return nopFragmenter{}, nil
}
