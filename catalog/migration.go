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
	"encoding/json"
	"path/filepath"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/catalogdb/common/kvstore"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
	"github.com/cubefs/catalogdb/syscatalog"
)

const (
	MigrationTableSchemaDefaults     = "table_schema_defaults"
	MigrationFrontendViewUsers       = "frontend_view_users"
	MigrationFrontendViewSchema      = "frontend_view_schema"
	MigrationLinkSchema              = "link_schema"
	MigrationDictionaryNames         = "dictionary_names"
	MigrationLogicalToPhysical       = "logical_to_physical"
	MigrationDictionaryRefcount      = "dictionary_refcount"
	MigrationPageSize                = "page_size"
	MigrationDeletedColumnIndicator  = "deleted_column_indicator"
	MigrationFrontendViewsDashboards = "frontend_views_to_dashboards"
	MigrationIDScopes                = "id_scopes"
	MigrationRecordOwnership         = "record_ownership"
)

type migration struct {
	name string
	fn   func(ctx context.Context, txn *store.Txn) error
}

// checkAndExecuteMigrations brings a store written by an older release to the
// current schema. Every step runs once and commits on its own.
func (c *Catalog) checkAndExecuteMigrations(ctx context.Context) error {
	migrations := []migration{
		{MigrationTableSchemaDefaults, c.migrateTableSchemaDefaults},
		{MigrationFrontendViewUsers, c.migrateFrontendViewUsers},
		{MigrationFrontendViewSchema, c.migrateFrontendViewSchema},
		{MigrationLinkSchema, c.migrateLinkSchema},
		{MigrationDictionaryNames, c.migrateDictionaryNames},
		{MigrationLogicalToPhysical, func(context.Context, *store.Txn) error { return nil }},
		{MigrationDictionaryRefcount, c.migrateDictionaryRefcount},
		{MigrationPageSize, c.migratePageSize},
		{MigrationDeletedColumnIndicator, c.migrateDeletedColumnIndicator},
		{MigrationFrontendViewsDashboards, c.migrateFrontendViewsToDashboards},
		{MigrationIDScopes, c.migrateIDScopes},
	}
	for _, m := range migrations {
		fn := m.fn
		if err := c.store.Migrate(ctx, m.name, func(txn *store.Txn) error { return fn(ctx, txn) }); err != nil {
			return errors.Info(err, "migration "+m.name).Detail(err)
		}
	}
	return c.recordOwnership(ctx)
}

type row map[string]json.RawMessage

// rewriteRows calls fn on every row of the column family and writes back the rows
// fn reports as changed.
func (c *Catalog) rewriteRows(ctx context.Context, txn *store.Txn, cf kvstore.CF, fn func(r row) (bool, error)) error {
	return c.store.List(ctx, cf, nil, func(key, value []byte) error {
		r := make(row)
		if err := json.Unmarshal(value, &r); err != nil {
			return errors.Info(err, "decode row of "+string(cf)).Detail(err)
		}
		changed, err := fn(r)
		if err != nil || !changed {
			return err
		}
		return c.store.Put(txn, cf, key, r)
	})
}

// set writes v under field, missing only skips fields that are present and non null.
func (r row) set(field string, v interface{}, missing bool) (bool, error) {
	if raw, ok := r[field]; missing && ok && string(raw) != "null" {
		return false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	r[field] = raw
	return true, nil
}

func (r row) has(field string) bool {
	raw, ok := r[field]
	return ok && string(raw) != "null"
}

func (c *Catalog) addMissingFields(ctx context.Context, txn *store.Txn, cf kvstore.CF, defaults map[string]interface{}) error {
	return c.rewriteRows(ctx, txn, cf, func(r row) (changed bool, err error) {
		for field, v := range defaults {
			set, err := r.set(field, v, true)
			if err != nil {
				return false, err
			}
			changed = changed || set
		}
		return
	})
}

func (c *Catalog) migrateTableSchemaDefaults(ctx context.Context, txn *store.Txn) error {
	return c.addMissingFields(ctx, txn, store.CFTables, map[string]interface{}{
		"max_chunk_size":  proto.DefaultMaxChunkSize,
		"shard_column_id": 0,
		"shard":           -1,
		"num_shards":      0,
		"key_metainfo":    "[]",
		"owner_id":        proto.RootUserID,
	})
}

func (c *Catalog) migrateFrontendViewUsers(ctx context.Context, txn *store.Txn) error {
	for _, cf := range []kvstore.CF{store.CFFrontendViews, store.CFLinks} {
		if err := c.addMissingFields(ctx, txn, cf, map[string]interface{}{"owner_id": proto.RootUserID}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) migrateFrontendViewSchema(ctx context.Context, txn *store.Txn) error {
	return c.addMissingFields(ctx, txn, store.CFFrontendViews, map[string]interface{}{
		"image_hash":  "",
		"update_time": "",
		"metadata":    "",
	})
}

func (c *Catalog) migrateLinkSchema(ctx context.Context, txn *store.Txn) error {
	return c.addMissingFields(ctx, txn, store.CFLinks, map[string]interface{}{"metadata": ""})
}

// migrateDictionaryNames moves dictionary folders named after the dictionary to the
// id based layout. A folder that cannot be moved is logged and left behind.
func (c *Catalog) migrateDictionaryNames(ctx context.Context, txn *store.Txn) error {
	span := trace.SpanFromContextSafe(ctx)
	return c.rewriteRows(ctx, txn, store.CFDictionaries, func(r row) (bool, error) {
		if r.has("version") {
			return false, nil
		}
		dd := &proto.DictDescriptor{}
		if err := decodeRow(r, dd); err != nil {
			return false, err
		}
		oldPath := filepath.Join(c.basePath, dataDir, c.db.DBName+"_"+dd.DictName)
		newPath := c.dictFolderPath(dd.DictRef.DictID)
		if err := c.cfg.Fs.Rename(oldPath, newPath); err != nil {
			span.Errorf("move dictionary folder %s to %s failed: %s", oldPath, newPath, err)
		}
		return r.set("version", proto.InitialVersion, false)
	})
}

func (c *Catalog) migrateDictionaryRefcount(ctx context.Context, txn *store.Txn) error {
	return c.addMissingFields(ctx, txn, store.CFDictionaries, map[string]interface{}{"refcount": 1})
}

// migratePageSize pins tables created before the page size was configurable to the
// size they were written with.
func (c *Catalog) migratePageSize(ctx context.Context, txn *store.Txn) error {
	return c.rewriteRows(ctx, txn, store.CFTables, func(r row) (bool, error) {
		if r.has("version") {
			return false, nil
		}
		if _, err := r.set("frag_page_size", proto.LegacyFragPageSize, false); err != nil {
			return false, err
		}
		return r.set("version", proto.InitialVersion, false)
	})
}

func (c *Catalog) migrateDeletedColumnIndicator(ctx context.Context, txn *store.Txn) error {
	return c.addMissingFields(ctx, txn, store.CFColumns, map[string]interface{}{"is_deleted": false})
}

func (c *Catalog) migrateFrontendViewsToDashboards(ctx context.Context, txn *store.Txn) error {
	views, err := c.storage.ListFrontendViews(ctx)
	if err != nil {
		return err
	}
	for _, vd := range views {
		if err = c.storage.PutDashboard(txn, vd); err != nil {
			return err
		}
	}
	return nil
}

// migrateIDScopes raises every id scope above the ids assigned before the scopes
// were persisted.
func (c *Catalog) migrateIDScopes(ctx context.Context, txn *store.Txn) error {
	scopes := []struct {
		name string
		cf   kvstore.CF
	}{
		{idgenerator.ScopeTable, store.CFTables},
		{idgenerator.ScopeDict, store.CFDictionaries},
		{idgenerator.ScopeDashboard, store.CFDashboards},
		{idgenerator.ScopeLink, store.CFLinks},
	}
	for _, scope := range scopes {
		var max int32
		err := c.store.List(ctx, scope.cf, nil, func(key, _ []byte) error {
			if id := store.DecodeID(key); id > max {
				max = id
			}
			return nil
		})
		if err != nil {
			return err
		}
		c.idGen.Observe(txn, scope.name, max)
	}
	return nil
}

// recordOwnership grants the objects of a legacy store to the private roles of
// their owners. It joins the system catalog transaction, so the marker lands in the
// database store together with the grants.
func (c *Catalog) recordOwnership(ctx context.Context) error {
	if !c.sys.PrivilegesOn() {
		return nil
	}
	need, err := c.store.NeedsMigration(ctx, MigrationRecordOwnership)
	if err != nil || !need {
		return err
	}

	tables, err := c.storage.ListTables(ctx)
	if err != nil {
		return err
	}
	views, err := c.storage.ListViews(ctx)
	if err != nil {
		return err
	}
	isView := make(map[int32]bool, len(views))
	for _, view := range views {
		isView[view.TableID] = true
	}
	dashboards, err := c.storage.ListDashboards(ctx)
	if err != nil {
		return err
	}

	var objects []*privilege.DBObject
	for _, td := range tables {
		if td.UserID <= 0 || td.Shard >= 0 {
			continue
		}
		typ, privs := privilege.TableObject, privilege.AllTable
		if isView[td.TableID] {
			typ, privs = privilege.ViewObject, privilege.AllView
		}
		obj := privilege.NewDBObjectByID(typ, c.db.DBID, td.TableID).SetPrivileges(privs)
		obj.Name, obj.Owner = td.TableName, td.UserID
		objects = append(objects, obj)
	}
	for _, vd := range dashboards {
		if vd.UserID <= 0 {
			continue
		}
		obj := privilege.NewDBObjectByID(privilege.DashboardObject, c.db.DBID, vd.ViewID).SetPrivileges(privilege.AllDashboard)
		obj.Name, obj.Owner = vd.ViewName, vd.UserID
		objects = append(objects, obj)
	}

	err = c.sys.WithTxn(ctx, func(t *syscatalog.Txn) error {
		if err := t.PopulateRoleDBObjects(ctx, objects); err != nil {
			return err
		}
		c.store.SetMarker(t.StoreTxn(), MigrationRecordOwnership)
		return nil
	})
	if err != nil {
		return errors.Info(err, "migration "+MigrationRecordOwnership).Detail(err)
	}
	trace.SpanFromContextSafe(ctx).Infof("ownership of %d objects in database %s recorded", len(objects), c.db.DBName)
	return nil
}

func decodeRow(r row, v interface{}) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
