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
	"strconv"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/proto"
)

const dictFolderPerm = 0o755

func dictNBits(ti proto.SQLTypeInfo) int32 {
	if ti.CompParam > 0 {
		return ti.CompParam
	}
	return proto.DefaultDictNBits
}

// setDictEncoding points the type at the dictionary, scalar columns store ids of nbits.
func setDictEncoding(ti *proto.SQLTypeInfo, dictID, nbits int32) {
	if !ti.IsArray() {
		ti.Size = nbits / 8
	}
	ti.CompParam = dictID
}

// setColumnDictionary gives a dictionary encoded column a shared or a fresh
// dictionary. Fresh dictionaries of logical tables are collected in pending and
// their id is returned, shards get the dummy id 0.
func (c *Catalog) setColumnDictionary(ctx context.Context, d *ddlTxn, cd *proto.ColumnDescriptor,
	created []*proto.ColumnDescriptor, sharedDicts []proto.SharedDictionaryDef, td *proto.TableDescriptor,
	statementTable string, isLogical bool, pending map[int32]*proto.DictDescriptor,
) (int32, error) {
	shared, err := c.setColumnSharedDictionary(d, cd, created, sharedDicts, statementTable, pending)
	if err != nil || shared {
		return 0, err
	}

	nbits := dictNBits(cd.ColumnType)
	if !isLogical {
		setDictEncoding(&cd.ColumnType, 0, nbits)
		return 0, nil
	}
	dictID, err := c.idGen.AllocOne(ctx, d.txn, idgenerator.ScopeDict)
	if err != nil {
		return 0, err
	}
	pending[dictID] = &proto.DictDescriptor{
		DictRef:        proto.DictRef{DBID: c.db.DBID, DictID: dictID},
		DictName:       td.TableName + "_" + cd.ColumnName + "_dict" + strconv.Itoa(int(dictID)),
		DictNBits:      nbits,
		Refcount:       1,
		DictFolderPath: c.dictFolderPath(dictID),
		Version:        proto.InitialVersion,
	}
	setDictEncoding(&cd.ColumnType, dictID, nbits)
	return dictID, nil
}

// setColumnSharedDictionary applies the shared dictionary definition of the column
// if there is one. A reference into the statement must name a column created before,
// following it also follows whatever that column references.
func (c *Catalog) setColumnSharedDictionary(d *ddlTxn, cd *proto.ColumnDescriptor, created []*proto.ColumnDescriptor,
	sharedDicts []proto.SharedDictionaryDef, statementTable string, pending map[int32]*proto.DictDescriptor,
) (bool, error) {
	for _, def := range sharedDicts {
		if def.Column != cd.ColumnName {
			continue
		}
		var ref *proto.ColumnDescriptor
		if def.ForeignTable == statementTable {
			for _, col := range created {
				if col.ColumnName == def.ForeignColumn {
					ref = col
					break
				}
			}
		} else if foreign := c.getTableByName(def.ForeignTable); foreign != nil {
			ref = c.getColumnByName(foreign.td.TableID, def.ForeignColumn)
		}
		if ref == nil || !ref.ColumnType.IsDictEncoded() {
			return false, apierrors.Wrapf(apierrors.ErrSharedDictInvalid, "column %s references %s.%s",
				cd.ColumnName, def.ForeignTable, def.ForeignColumn)
		}
		cd.ColumnType = ref.ColumnType
		return true, c.addDictReference(d, cd.ColumnType.CompParam, pending)
	}
	return false, nil
}

func (c *Catalog) addDictReference(d *ddlTxn, dictID int32, pending map[int32]*proto.DictDescriptor) error {
	if dictID == 0 {
		return nil
	}
	if dd, ok := pending[dictID]; ok {
		dd.Refcount++
		return nil
	}
	entry, ok := c.dicts[dictID]
	if !ok {
		return apierrors.Wrapf(apierrors.ErrDanglingDictionary, "dictionary id %d", dictID)
	}
	return c.updateDict(d, entry, func(dd *proto.DictDescriptor) { dd.Refcount++ })
}

// updateDict replaces the descriptor of the entry by an updated copy.
func (c *Catalog) updateDict(d *ddlTxn, entry *dictEntry, fn func(dd *proto.DictDescriptor)) error {
	old := entry.dd
	dd := old.Clone()
	fn(dd)
	entry.dd = dd
	d.onRollback(func() { entry.dd = old })
	if dd.DictIsTemp {
		return nil
	}
	return c.storage.PutDict(d.txn, dd)
}

// releaseDictReference drops one reference of a dropped column. The last one
// removes the dictionary and, once committed, its folder.
func (c *Catalog) releaseDictReference(ctx context.Context, d *ddlTxn, dictID int32) error {
	entry, ok := c.dicts[dictID]
	if !ok {
		trace.SpanFromContextSafe(ctx).Warnf("dictionary id %d of database %s is unknown", dictID, c.db.DBName)
		return nil
	}
	if entry.dd.Refcount <= 0 {
		return apierrors.Wrapf(apierrors.ErrDictRefcountUnderflow, "dictionary %s", entry.dd.DictName)
	}
	if entry.dd.Refcount > 1 {
		return c.updateDict(d, entry, func(dd *proto.DictDescriptor) { dd.Refcount-- })
	}

	handle := c.detachDictHandle(entry)
	delete(c.dicts, dictID)
	d.onRollback(func() {
		entry.handle = handle
		c.dicts[dictID] = entry
	})
	dd := entry.dd.Clone()
	if !dd.DictIsTemp {
		c.storage.DeleteDict(d.txn, dictID)
	}
	d.afterCommit(func(ctx context.Context) {
		if handle != nil {
			handle.Close()
		}
		c.dropDictStorage(ctx, dd)
	})
	return nil
}

// resetDict empties a dictionary only the truncated table uses, it keeps its id.
// A shared dictionary only loses its loaded handle.
func (c *Catalog) resetDict(d *ddlTxn, entry *dictEntry) {
	handle := c.detachDictHandle(entry)
	d.onRollback(func() { entry.handle = handle })
	dd := entry.dd.Clone()
	reset := dd.Refcount == 1
	d.afterCommit(func(ctx context.Context) {
		if handle != nil {
			handle.Close()
		}
		if reset {
			c.dropDictStorage(ctx, dd)
			c.createDictStorage(ctx, dd)
		}
	})
}

func (c *Catalog) detachDictHandle(entry *dictEntry) StringDictionary {
	handle := entry.handle
	entry.handle = nil
	entry.generation++
	return handle
}

// createDictStorage makes the folder of a new dictionary and registers it with the
// dictionary service. Failures are logged, the metadata is already committed.
func (c *Catalog) createDictStorage(ctx context.Context, dd *proto.DictDescriptor) {
	span := trace.SpanFromContextSafe(ctx)
	if !dd.DictIsTemp && dd.DictFolderPath != "" {
		if err := c.cfg.Fs.MkdirAll(dd.DictFolderPath, dictFolderPerm); err != nil {
			span.Errorf("create folder %s of dictionary %s failed: %s", dd.DictFolderPath, dd.DictName, err)
		}
	}
	if c.cfg.DictClient != nil {
		if err := c.cfg.DictClient.Create(ctx, dd.DictRef, dd.DictIsTemp); err != nil {
			span.Errorf("create remote dictionary %+v failed: %s", dd.DictRef, err)
		}
	}
}

func (c *Catalog) dropDictStorage(ctx context.Context, dd *proto.DictDescriptor) {
	span := trace.SpanFromContextSafe(ctx)
	if !dd.DictIsTemp && dd.DictFolderPath != "" {
		if err := c.cfg.Fs.RemoveAll(dd.DictFolderPath); err != nil {
			span.Errorf("remove folder %s of dictionary %s failed: %s", dd.DictFolderPath, dd.DictName, err)
		}
	}
	if c.cfg.DictClient != nil {
		if err := c.cfg.DictClient.Drop(ctx, dd.DictRef); err != nil {
			span.Errorf("drop remote dictionary %+v failed: %s", dd.DictRef, err)
		}
	}
}

// GetMetadataForDict returns the dictionary, loadDict opens its handle as well.
func (c *Catalog) GetMetadataForDict(ctx context.Context, dictID int32, loadDict bool) (*proto.DictDescriptor, error) {
	c.lock.RLock()
	entry, ok := c.dicts[dictID]
	if !ok {
		c.lock.RUnlock()
		return nil, apierrors.Wrapf(apierrors.ErrDictNotExist, "dictionary id %d in database %s", dictID, c.db.DBName)
	}
	dd := entry.dd.Clone()
	c.lock.RUnlock()

	if loadDict {
		if _, err := c.Dictionary(ctx, dictID); err != nil {
			return nil, err
		}
	}
	return dd, nil
}

// Dictionary returns the loaded handle of the dictionary, opening it on first use.
// Concurrent first uses share one open, which runs without the catalog lock.
func (c *Catalog) Dictionary(ctx context.Context, dictID int32) (StringDictionary, error) {
	span := trace.SpanFromContextSafe(ctx)
	for {
		c.lock.RLock()
		entry, ok := c.dicts[dictID]
		if !ok {
			c.lock.RUnlock()
			return nil, apierrors.Wrapf(apierrors.ErrDictNotExist, "dictionary id %d in database %s", dictID, c.db.DBName)
		}
		if entry.handle != nil {
			handle := entry.handle
			c.lock.RUnlock()
			return handle, nil
		}
		generation := entry.generation
		dd := entry.dd.Clone()
		c.lock.RUnlock()

		key := "dict/" + strconv.Itoa(int(dictID)) + "/" + strconv.FormatUint(generation, 10)
		v, err, _ := c.singleRun.Do(key, func() (interface{}, error) {
			handle, err := c.cfg.DictOpener.Open(ctx, dd.DictFolderPath, dd.DictIsTemp)
			if err != nil {
				span.Errorf("open dictionary %s failed: %s", dd.DictName, err)
				return nil, err
			}
			c.lock.Lock()
			defer c.lock.Unlock()
			entry, ok := c.dicts[dictID]
			if !ok || entry.generation != generation || entry.handle != nil {
				handle.Close()
				return nil, nil
			}
			entry.handle = handle
			span.Debugf("dictionary %s opened from %s", dd.DictName, dd.DictFolderPath)
			return handle, nil
		})
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v.(StringDictionary), nil
		}
	}
}
