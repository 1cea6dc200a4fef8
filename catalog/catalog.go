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
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"golang.org/x/sync/singleflight"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/metrics"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
	"github.com/cubefs/catalogdb/syscatalog"
	"github.com/cubefs/catalogdb/util"
)

const dataDir = "mapd_data"

type tableEntry struct {
	td         *proto.TableDescriptor
	fragmenter Fragmenter
	// bumped whenever the fragmenter is invalidated
	generation uint64
}

type dictEntry struct {
	dd         *proto.DictDescriptor
	handle     StringDictionary
	generation uint64
}

type columnKey struct {
	tableID  int32
	columnID int32
}

type columnNameKey struct {
	tableID int32
	name    string
}

type dashboardKey struct {
	userID int32
	name   string
}

// Catalog holds the tables, columns, dictionaries, dashboards and links of one
// database. Descriptors live in id keyed maps, the name indexes map to ids.
// Readers always get copies.
type Catalog struct {
	cfg      *Config
	db       proto.DBMetadata
	basePath string
	sys      *syscatalog.SysCatalog
	store    *store.Store
	ownStore bool
	storage  *storage
	idGen    *idgenerator.IDGenerator

	tables            map[int32]*tableEntry
	tableNames        map[string]int32
	columns           map[columnKey]*proto.ColumnDescriptor
	columnNames       map[columnNameKey]int32
	deletedColumns    map[int32]int32
	dicts             map[int32]*dictEntry
	dashboards        map[int32]*proto.DashboardDescriptor
	dashboardNames    map[dashboardKey]int32
	links             map[int32]*proto.LinkDescriptor
	linkTokens        map[string]int32
	logicalToPhysical map[int32][]int32

	nextTempTableID int32
	nextTempDictID  int32
	closed          bool

	singleRun *singleflight.Group
	lock      sync.RWMutex
}

// New opens the catalog of db. The system database shares the system store, any
// other database opens its own store next to it. Pending migrations run before the
// in-memory maps are built.
func New(ctx context.Context, cfg *Config, sys *syscatalog.SysCatalog, db *proto.DBMetadata) (*Catalog, error) {
	span, ctx := trace.StartSpanFromContext(ctx, "catalog."+db.DBName)
	cfg.init()

	c := &Catalog{
		cfg:             cfg,
		db:              *db,
		basePath:        sys.BasePath(),
		sys:             sys,
		nextTempTableID: proto.TempTableStartID,
		nextTempDictID:  proto.TempDictStartID,
		singleRun:       &singleflight.Group{},
	}
	if db.DBID == sys.SystemDB().DBID {
		c.store = sys.Store()
	} else {
		s, err := store.NewStore(ctx, sys.StorePath(db.DBName), false, sys.StoreConfig())
		if err != nil {
			return nil, err
		}
		c.store, c.ownStore = s, true
	}
	c.storage = newStorage(c.store)

	err := c.open(ctx)
	if err != nil {
		span.Errorf("open catalog of database %s failed: %s", db.DBName, err)
		if c.ownStore {
			c.store.Close()
		}
		return nil, err
	}
	metrics.OpenCatalogs.Inc()
	span.Infof("catalog of database %s opened, %d tables, %d dictionaries", db.DBName, len(c.tables), len(c.dicts))
	return c, nil
}

func (c *Catalog) open(ctx context.Context) (err error) {
	if c.idGen, err = idgenerator.NewIDGenerator(ctx, c.store); err != nil {
		return
	}
	if err = c.checkAndExecuteMigrations(ctx); err != nil {
		return
	}
	return c.buildMaps(ctx)
}

// buildMaps loads every row of the store. A row pointing at a missing table aborts.
func (c *Catalog) buildMaps(ctx context.Context) error {
	c.tables = make(map[int32]*tableEntry)
	c.tableNames = make(map[string]int32)
	c.columns = make(map[columnKey]*proto.ColumnDescriptor)
	c.columnNames = make(map[columnNameKey]int32)
	c.deletedColumns = make(map[int32]int32)
	c.dicts = make(map[int32]*dictEntry)
	c.dashboards = make(map[int32]*proto.DashboardDescriptor)
	c.dashboardNames = make(map[dashboardKey]int32)
	c.links = make(map[int32]*proto.LinkDescriptor)
	c.linkTokens = make(map[string]int32)
	c.logicalToPhysical = make(map[int32][]int32)

	dicts, err := c.storage.ListDicts(ctx)
	if err != nil {
		return err
	}
	for _, dd := range dicts {
		dd.DictFolderPath = c.dictFolderPath(dd.DictRef.DictID)
		c.dicts[dd.DictRef.DictID] = &dictEntry{dd: dd}
	}

	tables, err := c.storage.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, td := range tables {
		c.putTable(&tableEntry{td: td})
	}

	columns, err := c.storage.ListColumns(ctx)
	if err != nil {
		return err
	}
	for _, cd := range columns {
		entry, ok := c.tables[cd.TableID]
		if !ok {
			return apierrors.Wrapf(apierrors.ErrDanglingColumn, "column %s of table id %d", cd.ColumnName, cd.TableID)
		}
		if ti := cd.ColumnType; ti.IsDictEncoded() && ti.CompParam != 0 {
			if _, ok := c.dicts[ti.CompParam]; !ok {
				return apierrors.Wrapf(apierrors.ErrDanglingDictionary, "column %s of table id %d, dictionary id %d",
					cd.ColumnName, cd.TableID, ti.CompParam)
			}
		}
		if cd.IsDeletedCol {
			entry.td.HasDeletedCol = true
		}
		c.putColumn(cd)
	}

	views, err := c.storage.ListViews(ctx)
	if err != nil {
		return err
	}
	for _, view := range views {
		entry, ok := c.tables[view.TableID]
		if !ok {
			return apierrors.Wrapf(apierrors.ErrDanglingView, "view of table id %d", view.TableID)
		}
		entry.td.IsView = true
		entry.td.ViewSQL = view.SQL
	}

	dashboards, err := c.storage.ListDashboards(ctx)
	if err != nil {
		return err
	}
	for _, vd := range dashboards {
		c.putDashboard(vd)
	}

	links, err := c.storage.ListLinks(ctx)
	if err != nil {
		return err
	}
	for _, ld := range links {
		c.putLink(ld)
	}

	shards, err := c.storage.ListLogicalToPhysical(ctx)
	if err != nil {
		return err
	}
	for _, record := range shards {
		_, logicalOK := c.tables[record.LogicalTableID]
		_, physicalOK := c.tables[record.PhysicalTableID]
		if !logicalOK || !physicalOK {
			return apierrors.Wrapf(apierrors.ErrDanglingShard, "logical table id %d, physical table id %d",
				record.LogicalTableID, record.PhysicalTableID)
		}
		c.logicalToPhysical[record.LogicalTableID] = append(c.logicalToPhysical[record.LogicalTableID], record.PhysicalTableID)
	}
	return nil
}

// Close releases every fragmenter and dictionary handle and the store of the database.
func (c *Catalog) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, entry := range c.tables {
		if entry.fragmenter != nil {
			entry.fragmenter.Close()
			entry.fragmenter = nil
		}
	}
	for _, entry := range c.dicts {
		if entry.handle != nil {
			entry.handle.Close()
			entry.handle = nil
		}
	}
	if c.ownStore {
		c.store.Close()
	}
	metrics.OpenCatalogs.Dec()
}

func (c *Catalog) DB() *proto.DBMetadata {
	ret := c.db
	return &ret
}

func (c *Catalog) CurrentDB() int32 {
	return c.db.DBID
}

func (c *Catalog) TableID(name string) (int32, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.lookupTableID(name)
}

// DatabaseID resolves through the system catalog without holding the catalog lock.
func (c *Catalog) DatabaseID(name string) (int32, bool) {
	db, err := c.sys.GetMetadataForDB(name)
	if err != nil {
		return 0, false
	}
	return db.DBID, true
}

// SecurableObjects lists the tables, views and dashboards roles may hold grants on.
func (c *Catalog) SecurableObjects() []*privilege.DBObject {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var ret []*privilege.DBObject
	for _, entry := range c.tables {
		td := entry.td
		if td.IsTemporary() || td.Shard >= 0 {
			continue
		}
		typ := privilege.TableObject
		if td.IsView {
			typ = privilege.ViewObject
		}
		obj := privilege.NewDBObjectByID(typ, c.db.DBID, td.TableID)
		obj.Name, obj.Owner = td.TableName, td.UserID
		ret = append(ret, obj)
	}
	for _, vd := range c.dashboards {
		obj := privilege.NewDBObjectByID(privilege.DashboardObject, c.db.DBID, vd.ViewID)
		obj.Name, obj.Owner = vd.ViewName, vd.UserID
		ret = append(ret, obj)
	}
	return ret
}

// lockedResolver answers from the maps of a catalog whose lock is already held.
type lockedResolver struct {
	c *Catalog
}

func (r lockedResolver) CurrentDB() int32 {
	return r.c.db.DBID
}

func (r lockedResolver) TableID(name string) (int32, bool) {
	return r.c.lookupTableID(name)
}

func (r lockedResolver) DatabaseID(string) (int32, bool) {
	return 0, false
}

// ddlTxn is one mutation of the catalog joined with the system catalog transaction.
// Storage engine work is deferred until both locks are released.
type ddlTxn struct {
	sys   *syscatalog.Txn
	txn   *store.Txn
	after []func(ctx context.Context)
}

func (d *ddlTxn) onRollback(fn func()) {
	d.txn.OnRollback(fn)
}

func (d *ddlTxn) afterCommit(fn func(ctx context.Context)) {
	d.after = append(d.after, fn)
}

// ddl runs fn with the system catalog locked before the catalog. In-memory changes
// made by fn register their undo on the transaction.
func (c *Catalog) ddl(ctx context.Context, op string, fn func(d *ddlTxn) error) error {
	var (
		after  []func(ctx context.Context)
		locked bool
	)
	err := c.sys.WithTxn(ctx, func(t *syscatalog.Txn) error {
		c.lock.Lock()
		locked = true
		if c.closed {
			return apierrors.Wrapf(apierrors.ErrDBNotExist, "catalog of database %s is closed", c.db.DBName)
		}
		d := &ddlTxn{sys: t, txn: t.StoreTxn()}
		if err := fn(d); err != nil {
			return err
		}
		after = d.after
		return nil
	})
	if locked {
		c.lock.Unlock()
	}
	metrics.ObserveDDL(op, err)
	if err != nil {
		trace.SpanFromContextSafe(ctx).Warnf("%s in database %s failed: %s", op, c.db.DBName, err)
		return err
	}
	for _, fn := range after {
		fn(ctx)
	}
	return nil
}

// grantOwner gives the owner every privilege on a new object.
func (c *Catalog) grantOwner(ctx context.Context, d *ddlTxn, ownerID int32, name string,
	typ privilege.ObjectType, objectID int32,
) error {
	if !d.sys.PrivilegesOn() {
		return nil
	}
	owner, err := d.sys.GetMetadataForUserByID(ownerID)
	if err != nil {
		return err
	}
	return d.sys.CreateDBObject(ctx, owner, name, typ, lockedResolver{c: c}, objectID)
}

// revokeAll removes every grant any role holds on the object.
func (c *Catalog) revokeAll(ctx context.Context, d *ddlTxn, typ privilege.ObjectType, objectID int32) error {
	obj := privilege.NewDBObjectByID(typ, c.db.DBID, objectID)
	return d.sys.RevokeDBObjectPrivilegesFromAllRoles(ctx, obj, lockedResolver{c: c})
}

func (c *Catalog) notify(tableName string) func(ctx context.Context) {
	return func(ctx context.Context) {
		c.cfg.Notifier.UpdateMetadata(ctx, c.db.DBName, tableName)
	}
}

func (c *Catalog) dictFolderPath(dictID int32) string {
	return filepath.Join(c.basePath, dataDir, "DB_"+strconv.Itoa(int(c.db.DBID))+"_DICT_"+strconv.Itoa(int(dictID)))
}

func (c *Catalog) lookupTableID(name string) (int32, bool) {
	id, ok := c.tableNames[util.ToUpper(name)]
	return id, ok
}

func (c *Catalog) getTableByName(name string) *tableEntry {
	id, ok := c.lookupTableID(name)
	if !ok {
		return nil
	}
	return c.tables[id]
}

func (c *Catalog) putTable(entry *tableEntry) {
	c.tables[entry.td.TableID] = entry
	c.tableNames[util.ToUpper(entry.td.TableName)] = entry.td.TableID
}

func (c *Catalog) removeTable(tableID int32) {
	entry, ok := c.tables[tableID]
	if !ok {
		return
	}
	delete(c.tables, tableID)
	delete(c.tableNames, util.ToUpper(entry.td.TableName))
	for _, cd := range c.columnsOf(tableID) {
		c.removeColumn(cd)
	}
}

func (c *Catalog) putColumn(cd *proto.ColumnDescriptor) {
	c.columns[columnKey{tableID: cd.TableID, columnID: cd.ColumnID}] = cd
	c.columnNames[columnNameKey{tableID: cd.TableID, name: util.ToUpper(cd.ColumnName)}] = cd.ColumnID
	if cd.IsDeletedCol {
		c.deletedColumns[cd.TableID] = cd.ColumnID
	}
}

func (c *Catalog) removeColumn(cd *proto.ColumnDescriptor) {
	delete(c.columns, columnKey{tableID: cd.TableID, columnID: cd.ColumnID})
	delete(c.columnNames, columnNameKey{tableID: cd.TableID, name: util.ToUpper(cd.ColumnName)})
	if cd.IsDeletedCol {
		delete(c.deletedColumns, cd.TableID)
	}
}

func (c *Catalog) getColumnByName(tableID int32, name string) *proto.ColumnDescriptor {
	id, ok := c.columnNames[columnNameKey{tableID: tableID, name: util.ToUpper(name)}]
	if !ok {
		return nil
	}
	return c.columns[columnKey{tableID: tableID, columnID: id}]
}

// columnsOf returns the columns of the table in id order.
func (c *Catalog) columnsOf(tableID int32) []*proto.ColumnDescriptor {
	entry, ok := c.tables[tableID]
	if !ok {
		return nil
	}
	ret := make([]*proto.ColumnDescriptor, 0, entry.td.NColumns)
	for id := int32(1); id <= entry.td.NColumns; id++ {
		if cd, ok := c.columns[columnKey{tableID: tableID, columnID: id}]; ok {
			ret = append(ret, cd)
		}
	}
	return ret
}

func (c *Catalog) putDashboard(vd *proto.DashboardDescriptor) {
	c.dashboards[vd.ViewID] = vd
	c.dashboardNames[dashboardKey{userID: vd.UserID, name: vd.ViewName}] = vd.ViewID
}

func (c *Catalog) removeDashboard(vd *proto.DashboardDescriptor) {
	delete(c.dashboards, vd.ViewID)
	delete(c.dashboardNames, dashboardKey{userID: vd.UserID, name: vd.ViewName})
}

func (c *Catalog) putLink(ld *proto.LinkDescriptor) {
	c.links[ld.LinkID] = ld
	c.linkTokens[ld.Link] = ld.LinkID
}
