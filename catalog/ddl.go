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

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/util"
)

func (c *Catalog) lookupTable(name string) (*tableEntry, error) {
	entry := c.getTableByName(name)
	if entry == nil {
		return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "table %s in database %s", name, c.db.DBName)
	}
	return entry, nil
}

// lookupDDLTarget resolves a table DDL may address. Shards of a logical table only
// change through their logical table.
func (c *Catalog) lookupDDLTarget(name string) (*tableEntry, error) {
	entry, err := c.lookupTable(name)
	if err != nil {
		return nil, err
	}
	if entry.td.Shard >= 0 {
		return nil, apierrors.Wrapf(apierrors.ErrInvalidArgument, "%s is shard %d of a sharded table in database %s",
			name, entry.td.Shard, c.db.DBName)
	}
	return entry, nil
}

// shardsOf returns the physical tables of a logical table, nil if it is not sharded.
func (c *Catalog) shardsOf(tableID int32) ([]*tableEntry, error) {
	physical, ok := c.logicalToPhysical[tableID]
	if !ok {
		return nil, nil
	}
	ret := make([]*tableEntry, 0, len(physical))
	for _, id := range physical {
		entry, ok := c.tables[id]
		if !ok {
			return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "shard id %d of table id %d in database %s",
				id, tableID, c.db.DBName)
		}
		ret = append(ret, entry)
	}
	return ret, nil
}

// DropTable drops the table or view and every shard of it. The rows of the table,
// its columns and its last dictionary references go in one transaction with the
// grants on it. Chunks and dictionary folders are removed after the commit.
func (c *Catalog) DropTable(ctx context.Context, name string) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.ddl(ctx, "drop_table", func(d *ddlTxn) error {
		entry, err := c.lookupDDLTarget(name)
		if err != nil {
			return err
		}
		td := entry.td
		shards, err := c.shardsOf(td.TableID)
		if err != nil {
			return err
		}
		if shards != nil {
			for _, shard := range shards {
				if err = c.doDropTable(ctx, d, shard); err != nil {
					return err
				}
			}
			logicalID, physical := td.TableID, c.logicalToPhysical[td.TableID]
			delete(c.logicalToPhysical, logicalID)
			d.onRollback(func() { c.logicalToPhysical[logicalID] = physical })
			if !td.IsTemporary() {
				if err = c.storage.DeleteLogicalToPhysical(ctx, d.txn, logicalID); err != nil {
					return err
				}
			}
		}
		return c.doDropTable(ctx, d, entry)
	})
	if err != nil {
		return err
	}
	span.Infof("table %s dropped from database %s", name, c.db.DBName)
	return nil
}

func (c *Catalog) doDropTable(ctx context.Context, d *ddlTxn, entry *tableEntry) error {
	td := entry.td
	temp := td.IsTemporary()
	columns := c.columnsOf(td.TableID)
	for _, cd := range columns {
		if ti := cd.ColumnType; ti.IsDictEncoded() && ti.CompParam != 0 {
			if err := c.releaseDictReference(ctx, d, ti.CompParam); err != nil {
				return err
			}
		}
	}

	if !temp {
		c.storage.DeleteTable(d.txn, td.TableID)
		if err := c.storage.DeleteColumns(ctx, d.txn, td.TableID); err != nil {
			return err
		}
		typ := privilege.TableObject
		if td.IsView {
			c.storage.DeleteView(d.txn, td.TableID)
			typ = privilege.ViewObject
		}
		if err := c.revokeAll(ctx, d, typ, td.TableID); err != nil {
			return err
		}
	}

	f := c.detachFragmenter(entry)
	c.removeTable(td.TableID)
	d.onRollback(func() {
		entry.fragmenter = f
		c.putTable(entry)
		for _, cd := range columns {
			c.putColumn(cd)
		}
	})

	dbID, tableID, isView := c.db.DBID, td.TableID, td.IsView
	d.afterCommit(func(ctx context.Context) {
		if f != nil {
			f.Close()
		}
		if !isView {
			c.removeTableData(ctx, dbID, tableID, temp)
		}
	})
	d.afterCommit(c.notify(td.TableName))
	return nil
}

// removeTableData drops every chunk of the table. The fragmenter must be closed.
func (c *Catalog) removeTableData(ctx context.Context, dbID, tableID int32, temp bool) {
	span := trace.SpanFromContextSafe(ctx)
	dataMgr := c.cfg.DataMgr
	if err := dataMgr.DeleteChunksWithPrefix(ctx, proto.ChunkKey{dbID, tableID}, proto.DiskLevel); err != nil {
		span.Errorf("delete chunks of table %d.%d failed: %s", dbID, tableID, err)
	}
	if temp {
		return
	}
	if err := dataMgr.Checkpoint(ctx, dbID, tableID); err != nil {
		span.Errorf("checkpoint table %d.%d failed: %s", dbID, tableID, err)
	}
	if err := dataMgr.RemoveTableRelatedDS(ctx, dbID, tableID); err != nil {
		span.Errorf("remove data structures of table %d.%d failed: %s", dbID, tableID, err)
	}
}

// TruncateTable removes every row of the table and of its shards, the schema stays.
// Dictionaries used by the table only are emptied in place and keep their ids.
func (c *Catalog) TruncateTable(ctx context.Context, name string) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.ddl(ctx, "truncate_table", func(d *ddlTxn) error {
		entry, err := c.lookupDDLTarget(name)
		if err != nil {
			return err
		}
		if entry.td.IsView {
			return apierrors.Wrapf(apierrors.ErrInvalidArgument, "%s is a view", name)
		}
		shards, err := c.shardsOf(entry.td.TableID)
		if err != nil {
			return err
		}
		for _, shard := range shards {
			c.doTruncateTable(d, shard)
		}
		c.doTruncateTable(d, entry)
		return nil
	})
	if err != nil {
		return err
	}
	span.Infof("table %s truncated in database %s", name, c.db.DBName)
	return nil
}

func (c *Catalog) doTruncateTable(d *ddlTxn, entry *tableEntry) {
	td := entry.td
	f := c.detachFragmenter(entry)
	d.onRollback(func() { entry.fragmenter = f })

	for _, cd := range c.columnsOf(td.TableID) {
		ti := cd.ColumnType
		if !ti.IsDictEncoded() || ti.CompParam == 0 {
			continue
		}
		if dict, ok := c.dicts[ti.CompParam]; ok {
			c.resetDict(d, dict)
		}
	}

	dbID, tableID, temp := c.db.DBID, td.TableID, td.IsTemporary()
	d.afterCommit(func(ctx context.Context) {
		if f != nil {
			f.Close()
		}
		c.removeTableData(ctx, dbID, tableID, temp)
	})
}

// RenameTable renames the table and its shards, ids stay.
func (c *Catalog) RenameTable(ctx context.Context, name, newName string) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.ddl(ctx, "rename_table", func(d *ddlTxn) error {
		entry, err := c.lookupDDLTarget(name)
		if err != nil {
			return err
		}
		shards, err := c.shardsOf(entry.td.TableID)
		if err != nil {
			return err
		}
		for i, shard := range shards {
			if err = c.renamePhysicalTable(d, shard, physicalTableName(newName, i+1)); err != nil {
				return err
			}
		}
		return c.renamePhysicalTable(d, entry, newName)
	})
	if err != nil {
		return err
	}
	span.Infof("table %s renamed to %s in database %s", name, newName, c.db.DBName)
	return nil
}

func (c *Catalog) renamePhysicalTable(d *ddlTxn, entry *tableEntry, newName string) error {
	old := entry.td
	if other := c.getTableByName(newName); other != nil && other != entry {
		return apierrors.Wrapf(apierrors.ErrTableAlreadyExist, "table %s in database %s", newName, c.db.DBName)
	}
	td := old.Clone()
	td.TableName = newName
	if !td.IsTemporary() {
		if err := c.storage.PutTable(d.txn, td); err != nil {
			return err
		}
	}
	c.renameEntry(entry, td)
	d.onRollback(func() { c.renameEntry(entry, old) })

	d.afterCommit(c.notify(old.TableName))
	d.afterCommit(c.notify(newName))
	return nil
}

func (c *Catalog) renameEntry(entry *tableEntry, td *proto.TableDescriptor) {
	delete(c.tableNames, util.ToUpper(entry.td.TableName))
	entry.td = td
	c.tableNames[util.ToUpper(td.TableName)] = td.TableID
}

// RenameColumn renames a column of the table and of its shards.
func (c *Catalog) RenameColumn(ctx context.Context, tableName, name, newName string) error {
	span := trace.SpanFromContextSafe(ctx)
	err := c.ddl(ctx, "rename_column", func(d *ddlTxn) error {
		entry, err := c.lookupDDLTarget(tableName)
		if err != nil {
			return err
		}
		shards, err := c.shardsOf(entry.td.TableID)
		if err != nil {
			return err
		}
		for _, shard := range shards {
			if err = c.renameColumn(d, shard, name, newName); err != nil {
				return err
			}
		}
		return c.renameColumn(d, entry, name, newName)
	})
	if err != nil {
		return err
	}
	span.Infof("column %s of table %s renamed to %s", name, tableName, newName)
	return nil
}

func (c *Catalog) renameColumn(d *ddlTxn, entry *tableEntry, name, newName string) error {
	tableID := entry.td.TableID
	old := c.getColumnByName(tableID, name)
	if old == nil {
		return apierrors.Wrapf(apierrors.ErrColumnNotExist, "column %s of table %s", name, entry.td.TableName)
	}
	if other := c.getColumnByName(tableID, newName); other != nil && other != old {
		return apierrors.Wrapf(apierrors.ErrColumnAlreadyExist, "column %s of table %s", newName, entry.td.TableName)
	}
	cd := old.Clone()
	cd.ColumnName = newName
	if !entry.td.IsTemporary() {
		if err := c.storage.PutColumn(d.txn, cd); err != nil {
			return err
		}
	}
	c.removeColumn(old)
	c.putColumn(cd)
	d.onRollback(func() {
		c.removeColumn(cd)
		c.putColumn(old)
	})
	d.afterCommit(c.notify(entry.td.TableName))
	return nil
}

// GetTableEpoch returns the epoch of the table. The shards of a logical table must
// agree, otherwise -1 and an inconsistency error are returned.
func (c *Catalog) GetTableEpoch(ctx context.Context, tableID int32) (int32, error) {
	physical, err := c.physicalTableIDs(tableID)
	if err != nil {
		return -1, err
	}
	var epoch int32
	for i, id := range physical {
		e, err := c.cfg.DataMgr.GetTableEpoch(ctx, c.db.DBID, id)
		if err != nil {
			return -1, err
		}
		if i == 0 {
			epoch = e
			continue
		}
		if e != epoch {
			trace.SpanFromContextSafe(ctx).Errorf("epochs of the shards of table %d.%d disagree, epoch: %d, shard %d epoch: %d",
				c.db.DBID, tableID, epoch, id, e)
			return -1, apierrors.Wrapf(apierrors.ErrShardEpochMismatch, "table id %d", tableID)
		}
	}
	return epoch, nil
}

// SetTableEpoch rolls the table and its shards back to epoch. Cached chunks and
// fragmenters are dropped first, the table itself goes before its shards.
func (c *Catalog) SetTableEpoch(ctx context.Context, tableID, epoch int32) error {
	span := trace.SpanFromContextSafe(ctx)
	span.Infof("set epoch of table %d.%d to %d", c.db.DBID, tableID, epoch)
	shards, err := c.shardIDs(tableID)
	if err != nil {
		return err
	}
	for _, id := range append([]int32{tableID}, shards...) {
		c.removeChunks(ctx, id)
		if err = c.cfg.DataMgr.SetTableEpoch(ctx, c.db.DBID, id, epoch); err != nil {
			span.Errorf("set epoch of table %d.%d failed: %s", c.db.DBID, id, err)
			return err
		}
	}
	return nil
}

// physicalTableIDs returns the shards of a logical table or the table itself.
func (c *Catalog) physicalTableIDs(tableID int32) ([]int32, error) {
	shards, err := c.shardIDs(tableID)
	if err != nil || len(shards) > 0 {
		return shards, err
	}
	return []int32{tableID}, nil
}

// shardIDs returns the shards of a logical table, none for any other table.
func (c *Catalog) shardIDs(tableID int32) ([]int32, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if _, ok := c.tables[tableID]; !ok {
		return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "table id %d in database %s", tableID, c.db.DBName)
	}
	return append([]int32(nil), c.logicalToPhysical[tableID]...), nil
}

// removeChunks drops the fragmenter and the cached chunks of the table.
func (c *Catalog) removeChunks(ctx context.Context, tableID int32) {
	span := trace.SpanFromContextSafe(ctx)
	var f Fragmenter
	c.lock.Lock()
	if entry, ok := c.tables[tableID]; ok {
		f = c.detachFragmenter(entry)
	}
	c.lock.Unlock()
	if f != nil {
		f.Close()
	}

	prefix := proto.ChunkKey{c.db.DBID, tableID}
	for _, level := range []proto.MemoryLevel{proto.CPULevel, proto.GPULevel} {
		if err := c.cfg.DataMgr.DeleteChunksWithPrefix(ctx, prefix, level); err != nil {
			span.Errorf("delete %s chunks of table %d.%d failed: %s", level, c.db.DBID, tableID, err)
		}
	}
}
