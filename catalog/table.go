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
	"sort"
	"strconv"
	"strings"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
)

type geoColumn struct {
	suffix string
	ti     proto.SQLTypeInfo
}

var (
	coordsColumn      = geoColumn{suffix: "_coords", ti: proto.NewArrayTypeInfo(proto.TinyInt, true)}
	ringSizesColumn   = geoColumn{suffix: "_ring_sizes", ti: proto.NewArrayTypeInfo(proto.Int, true)}
	polyRingsColumn   = geoColumn{suffix: "_poly_rings", ti: proto.NewArrayTypeInfo(proto.Int, true)}
	renderGroupColumn = geoColumn{suffix: "_render_group", ti: proto.NewSQLTypeInfo(proto.Int, true)}
)

// geoPhysicalColumns lists the columns a geometry column is stored in, in order.
func geoPhysicalColumns(t proto.SQLType) ([]geoColumn, error) {
	switch t {
	case proto.Point, proto.LineString:
		return []geoColumn{coordsColumn}, nil
	case proto.Polygon:
		return []geoColumn{coordsColumn, ringSizesColumn, renderGroupColumn}, nil
	case proto.MultiPolygon:
		return []geoColumn{coordsColumn, ringSizesColumn, polyRingsColumn, renderGroupColumn}, nil
	default:
		return nil, apierrors.Wrapf(apierrors.ErrUnknownGeoType, "type %s", t)
	}
}

func physicalTableName(logicalName string, shard int) string {
	return logicalName + proto.PhysicalTableNameTag + strconv.Itoa(shard)
}

func setTableDefaults(td *proto.TableDescriptor) {
	if td.MaxFragRows == 0 {
		td.MaxFragRows = proto.DefaultMaxFragRows
	}
	if td.MaxChunkSize == 0 {
		td.MaxChunkSize = proto.DefaultMaxChunkSize
	}
	if td.FragPageSize == 0 {
		td.FragPageSize = proto.DefaultFragPageSize
	}
	if td.MaxRows == 0 {
		td.MaxRows = proto.DefaultMaxRows
	}
	if td.KeyMetainfo == "" {
		td.KeyMetainfo = "[]"
	}
	if td.NShards == 0 {
		td.Shard = -1
	}
	td.Version = proto.InitialVersion
}

// expandColumns adds the storage columns of geometry columns and the system columns.
func (c *Catalog) expandColumns(td *proto.TableDescriptor, columns []*proto.ColumnDescriptor) ([]*proto.ColumnDescriptor, error) {
	ret := make([]*proto.ColumnDescriptor, 0, len(columns)+2)
	names := make(map[string]struct{}, len(columns)+2)
	add := func(cd *proto.ColumnDescriptor) error {
		name := strings.ToUpper(cd.ColumnName)
		if _, ok := names[name]; ok {
			return apierrors.Wrapf(apierrors.ErrDuplicateColumn, "column %s of table %s", cd.ColumnName, td.TableName)
		}
		names[name] = struct{}{}
		ret = append(ret, cd)
		return nil
	}

	for _, in := range columns {
		if strings.EqualFold(in.ColumnName, proto.RowIDColumnName) {
			return nil, apierrors.ErrReservedColumnName
		}
		cd := in.Clone()
		if err := add(cd); err != nil {
			return nil, err
		}
		if !cd.ColumnType.IsGeometry() {
			continue
		}
		if td.IsTemporary() {
			return nil, apierrors.Wrapf(apierrors.ErrGeoInTemporaryTable, "column %s of table %s", cd.ColumnName, td.TableName)
		}
		physical, err := geoPhysicalColumns(cd.ColumnType.Type)
		if err != nil {
			return nil, err
		}
		for _, geo := range physical {
			if err = add(&proto.ColumnDescriptor{ColumnName: cd.ColumnName + geo.suffix, ColumnType: geo.ti}); err != nil {
				return nil, err
			}
		}
	}

	rowID := &proto.ColumnDescriptor{
		ColumnName:  proto.RowIDColumnName,
		ColumnType:  proto.NewSQLTypeInfo(proto.BigInt, true),
		IsSystemCol: true,
	}
	if !c.cfg.MaterializeRowID {
		rowID.IsVirtualCol = true
		rowID.VirtualExpr = proto.RowIDVirtualExpr
	}
	ret = append(ret, rowID)

	if td.HasDeletedCol {
		ret = append(ret, &proto.ColumnDescriptor{
			ColumnName:   proto.DeletedColumnName,
			ColumnType:   proto.NewSQLTypeInfo(proto.Boolean, true),
			IsSystemCol:  true,
			IsDeletedCol: true,
		})
	}
	return ret, nil
}

// CreateTable creates a table or a view from the user columns. Geometry columns get
// their storage columns, rowid and the optional delete marker are appended. The
// created descriptor is returned with its id assigned.
func (c *Catalog) CreateTable(ctx context.Context, td *proto.TableDescriptor, columns []*proto.ColumnDescriptor,
	sharedDicts []proto.SharedDictionaryDef, isLogical bool,
) (*proto.TableDescriptor, error) {
	span := trace.SpanFromContextSafe(ctx)
	var created *proto.TableDescriptor
	err := c.ddl(ctx, "create_table", func(d *ddlTxn) (err error) {
		created, err = c.createTable(ctx, d, td, columns, sharedDicts, isLogical, td.TableName)
		return
	})
	if err != nil {
		return nil, err
	}
	span.Infof("table %s created in database %s, id: %d, columns: %d", created.TableName, c.db.DBName,
		created.TableID, created.NColumns)
	return created, nil
}

// CreateShardedTable creates the logical table and one physical table per shard.
func (c *Catalog) CreateShardedTable(ctx context.Context, td *proto.TableDescriptor, columns []*proto.ColumnDescriptor,
	sharedDicts []proto.SharedDictionaryDef,
) (*proto.TableDescriptor, error) {
	span := trace.SpanFromContextSafe(ctx)
	if td.NShards > 0 {
		if td.ShardedColumnID <= 0 || int(td.ShardedColumnID) > len(columns) {
			return nil, apierrors.Wrapf(apierrors.ErrShardColumnInvalid, "column id %d of table %s in database %s",
				td.ShardedColumnID, td.TableName, c.db.DBName)
		}
		if columns[td.ShardedColumnID-1].IsSystemCol {
			return nil, apierrors.Wrapf(apierrors.ErrShardColumnInvalid, "system column %s of table %s",
				columns[td.ShardedColumnID-1].ColumnName, td.TableName)
		}
	} else if td.ShardedColumnID > 0 {
		return nil, apierrors.Wrapf(apierrors.ErrShardCountInvalid, "table %s, shard count %d", td.TableName, td.NShards)
	}

	var created *proto.TableDescriptor
	err := c.ddl(ctx, "create_sharded_table", func(d *ddlTxn) (err error) {
		logical := td.Clone()
		logical.Shard = -1
		if created, err = c.createTable(ctx, d, logical, columns, sharedDicts, true, td.TableName); err != nil {
			return
		}

		var physical []int32
		for k := 1; k <= int(td.NShards); k++ {
			shard := td.Clone()
			shard.TableName = physicalTableName(td.TableName, k)
			shard.Shard = int32(k - 1)
			p, err := c.createTable(ctx, d, shard, columns, sharedDicts, false, td.TableName)
			if err != nil {
				return err
			}
			physical = append(physical, p.TableID)
		}
		if len(physical) == 0 {
			return nil
		}

		logicalID := created.TableID
		c.logicalToPhysical[logicalID] = physical
		d.onRollback(func() { delete(c.logicalToPhysical, logicalID) })
		if created.IsTemporary() {
			return nil
		}
		for _, id := range physical {
			if err = c.storage.PutLogicalToPhysical(d.txn, logicalID, id); err != nil {
				return
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.Infof("sharded table %s created in database %s, id: %d, shards: %d", created.TableName, c.db.DBName,
		created.TableID, td.NShards)
	return created, nil
}

// createTable resolves the shared dictionary references of the statement against
// statementTable, the logical table name when creating shards.
func (c *Catalog) createTable(ctx context.Context, d *ddlTxn, in *proto.TableDescriptor, columns []*proto.ColumnDescriptor,
	sharedDicts []proto.SharedDictionaryDef, isLogical bool, statementTable string,
) (*proto.TableDescriptor, error) {
	if c.getTableByName(in.TableName) != nil {
		return nil, apierrors.Wrapf(apierrors.ErrTableAlreadyExist, "table %s in database %s", in.TableName, c.db.DBName)
	}
	td := in.Clone()
	setTableDefaults(td)
	cols, err := c.expandColumns(td, columns)
	if err != nil {
		return nil, err
	}
	td.NColumns = int32(len(cols))
	if td.IsTemporary() {
		return c.createTemporaryTable(ctx, d, td, cols)
	}

	if td.TableID, err = c.idGen.AllocOne(ctx, d.txn, idgenerator.ScopeTable); err != nil {
		return nil, err
	}
	var (
		pending    = make(map[int32]*proto.DictDescriptor)
		newDictIDs []int32
	)
	for i, cd := range cols {
		cd.TableID, cd.ColumnID = td.TableID, int32(i+1)
		if !cd.ColumnType.IsDictEncoded() {
			continue
		}
		dictID, err := c.setColumnDictionary(ctx, d, cd, cols[:i], sharedDicts, td, statementTable, isLogical, pending)
		if err != nil {
			return nil, err
		}
		if dictID != 0 {
			newDictIDs = append(newDictIDs, dictID)
		}
	}

	for _, dictID := range newDictIDs {
		dd := pending[dictID]
		if err = c.storage.PutDict(d.txn, dd); err != nil {
			return nil, err
		}
		c.dicts[dictID] = &dictEntry{dd: dd}
		id := dictID
		d.onRollback(func() { delete(c.dicts, id) })
	}
	for _, cd := range cols {
		if err = c.storage.PutColumn(d.txn, cd); err != nil {
			return nil, err
		}
	}
	if err = c.storage.PutTable(d.txn, td); err != nil {
		return nil, err
	}
	if td.IsView {
		if err = c.storage.PutView(d.txn, td.TableID, td.ViewSQL); err != nil {
			return nil, err
		}
	}
	c.registerTable(d, td, cols)

	if isLogical {
		typ := privilege.TableObject
		if td.IsView {
			typ = privilege.ViewObject
		}
		if err = c.grantOwner(ctx, d, td.UserID, td.TableName, typ, td.TableID); err != nil {
			return nil, err
		}
	}

	for _, dictID := range newDictIDs {
		dd := pending[dictID].Clone()
		d.afterCommit(func(ctx context.Context) { c.createDictStorage(ctx, dd) })
	}
	d.afterCommit(c.notify(td.TableName))
	return td.Clone(), nil
}

// createTemporaryTable keeps the table in memory only, ids come from the temporary
// counters. Shared dictionary references are not resolved for temporary tables.
func (c *Catalog) createTemporaryTable(ctx context.Context, d *ddlTxn, td *proto.TableDescriptor,
	cols []*proto.ColumnDescriptor,
) (*proto.TableDescriptor, error) {
	td.TableID = c.nextTempTableID
	c.nextTempTableID++

	var dicts []*proto.DictDescriptor
	for i, cd := range cols {
		cd.TableID, cd.ColumnID = td.TableID, int32(i+1)
		if !cd.ColumnType.IsDictEncoded() {
			continue
		}
		nbits := dictNBits(cd.ColumnType)
		dd := &proto.DictDescriptor{
			DictRef:    proto.DictRef{DBID: c.db.DBID, DictID: c.nextTempDictID},
			DictNBits:  nbits,
			Refcount:   1,
			DictIsTemp: true,
			Version:    proto.InitialVersion,
		}
		c.nextTempDictID++
		setDictEncoding(&cd.ColumnType, dd.DictRef.DictID, nbits)
		dicts = append(dicts, dd)
	}
	for _, dd := range dicts {
		c.dicts[dd.DictRef.DictID] = &dictEntry{dd: dd}
		id := dd.DictRef.DictID
		d.onRollback(func() { delete(c.dicts, id) })
	}
	c.registerTable(d, td, cols)

	for _, dd := range dicts {
		dd := dd.Clone()
		d.afterCommit(func(ctx context.Context) { c.createDictStorage(ctx, dd) })
	}
	d.afterCommit(c.notify(td.TableName))
	return td.Clone(), nil
}

func (c *Catalog) registerTable(d *ddlTxn, td *proto.TableDescriptor, cols []*proto.ColumnDescriptor) {
	c.putTable(&tableEntry{td: td})
	for _, cd := range cols {
		c.putColumn(cd)
	}
	tableID := td.TableID
	d.onRollback(func() { c.removeTable(tableID) })
}

// GetMetadataForTable looks the table up by name, case insensitive. populateFragmenter
// instantiates the fragmenter of the table when it has none yet.
func (c *Catalog) GetMetadataForTable(ctx context.Context, name string, populateFragmenter bool) (*proto.TableDescriptor, error) {
	c.lock.RLock()
	entry := c.getTableByName(name)
	if entry == nil {
		c.lock.RUnlock()
		return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "table %s in database %s", name, c.db.DBName)
	}
	td := entry.td.Clone()
	c.lock.RUnlock()

	if populateFragmenter {
		if _, err := c.Fragmenter(ctx, td.TableID); err != nil {
			return nil, err
		}
	}
	return td, nil
}

// GetMetadataForTableByID looks the table up by id and instantiates its fragmenter.
func (c *Catalog) GetMetadataForTableByID(ctx context.Context, tableID int32) (*proto.TableDescriptor, error) {
	c.lock.RLock()
	entry, ok := c.tables[tableID]
	if !ok {
		c.lock.RUnlock()
		return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "table id %d in database %s", tableID, c.db.DBName)
	}
	td := entry.td.Clone()
	c.lock.RUnlock()

	if _, err := c.Fragmenter(ctx, tableID); err != nil {
		return nil, err
	}
	return td, nil
}

func (c *Catalog) GetMetadataForColumn(tableID int32, name string) (*proto.ColumnDescriptor, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	cd := c.getColumnByName(tableID, name)
	if cd == nil {
		return nil, apierrors.Wrapf(apierrors.ErrColumnNotExist, "column %s of table id %d", name, tableID)
	}
	return cd.Clone(), nil
}

func (c *Catalog) GetMetadataForColumnByID(tableID, columnID int32) (*proto.ColumnDescriptor, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	cd, ok := c.columns[columnKey{tableID: tableID, columnID: columnID}]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrColumnNotExist, "column id %d of table id %d", columnID, tableID)
	}
	return cd.Clone(), nil
}

// GetAllColumnMetadataForTable returns the columns in id order. The storage columns
// of geometry columns are physical, rowid is a system and usually a virtual column.
func (c *Catalog) GetAllColumnMetadataForTable(tableID int32, fetchSystem, fetchVirtual, fetchPhysical bool) []*proto.ColumnDescriptor {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var (
		ret  []*proto.ColumnDescriptor
		skip int
	)
	for _, cd := range c.columnsOf(tableID) {
		if skip > 0 {
			skip--
			continue
		}
		if cd.IsSystemCol && !fetchSystem {
			continue
		}
		if cd.IsVirtualCol && !fetchVirtual {
			continue
		}
		if !fetchPhysical && cd.ColumnType.IsGeometry() {
			if physical, err := geoPhysicalColumns(cd.ColumnType.Type); err == nil {
				skip = len(physical)
			}
		}
		ret = append(ret, cd.Clone())
	}
	return ret
}

// GetAllTableMetadata returns every table and view ordered by id.
func (c *Catalog) GetAllTableMetadata() []*proto.TableDescriptor {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ret := make([]*proto.TableDescriptor, 0, len(c.tables))
	for _, entry := range c.tables {
		ret = append(ret, entry.td.Clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].TableID < ret[j].TableID })
	return ret
}

// GetPhysicalTablesDescriptors returns the shards of a logical table, a table that
// is not sharded is its own only shard.
func (c *Catalog) GetPhysicalTablesDescriptors(logicalID int32) ([]*proto.TableDescriptor, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	entry, ok := c.tables[logicalID]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "table id %d in database %s", logicalID, c.db.DBName)
	}
	physical, ok := c.logicalToPhysical[logicalID]
	if !ok {
		return []*proto.TableDescriptor{entry.td.Clone()}, nil
	}
	ret := make([]*proto.TableDescriptor, 0, len(physical))
	for _, id := range physical {
		shard, ok := c.tables[id]
		if !ok {
			return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "shard id %d of table id %d in database %s",
				id, logicalID, c.db.DBName)
		}
		ret = append(ret, shard.td.Clone())
	}
	return ret, nil
}

// GetDeletedColumn returns the delete marker column of the table or nil.
func (c *Catalog) GetDeletedColumn(tableID int32) *proto.ColumnDescriptor {
	c.lock.RLock()
	defer c.lock.RUnlock()
	columnID, ok := c.deletedColumns[tableID]
	if !ok {
		return nil
	}
	return c.columns[columnKey{tableID: tableID, columnID: columnID}].Clone()
}

// TablesWithDeletedColumn lists the ids of the tables carrying a delete marker column.
func (c *Catalog) TablesWithDeletedColumn() []int32 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ret := make([]int32, 0, len(c.deletedColumns))
	for id := range c.deletedColumns {
		ret = append(ret, id)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}
