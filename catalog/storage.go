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

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/cubefs/catalogdb/common/kvstore"
	"github.com/cubefs/catalogdb/proto"
	"github.com/cubefs/catalogdb/store"
)

type viewRecord struct {
	TableID int32  `json:"table_id"`
	SQL     string `json:"sql"`
}

type logicalToPhysicalRecord struct {
	LogicalTableID  int32 `json:"logical_table_id"`
	PhysicalTableID int32 `json:"physical_table_id"`
}

type storage struct {
	store         *store.Store
	keysGenerator *keysGenerator
}

func newStorage(s *store.Store) *storage {
	return &storage{store: s, keysGenerator: &keysGenerator{}}
}

func (s *storage) PutTable(txn *store.Txn, td *proto.TableDescriptor) error {
	return s.store.Put(txn, store.CFTables, s.keysGenerator.encodeTableKey(td.TableID), td)
}

func (s *storage) DeleteTable(txn *store.Txn, tableID int32) {
	s.store.Delete(txn, store.CFTables, s.keysGenerator.encodeTableKey(tableID))
}

func (s *storage) ListTables(ctx context.Context) (ret []*proto.TableDescriptor, err error) {
	err = s.list(ctx, store.CFTables, nil, "table", func() interface{} {
		td := &proto.TableDescriptor{}
		ret = append(ret, td)
		return td
	})
	return
}

func (s *storage) PutColumn(txn *store.Txn, cd *proto.ColumnDescriptor) error {
	return s.store.Put(txn, store.CFColumns, s.keysGenerator.encodeColumnKey(cd.TableID, cd.ColumnID), cd)
}

// DeleteColumns removes every committed column row of the table.
func (s *storage) DeleteColumns(ctx context.Context, txn *store.Txn, tableID int32) error {
	return s.store.DeletePrefix(ctx, txn, store.CFColumns, s.keysGenerator.encodeColumnKeyPrefix(tableID))
}

func (s *storage) ListColumns(ctx context.Context) (ret []*proto.ColumnDescriptor, err error) {
	err = s.list(ctx, store.CFColumns, nil, "column", func() interface{} {
		cd := &proto.ColumnDescriptor{}
		ret = append(ret, cd)
		return cd
	})
	return
}

func (s *storage) PutView(txn *store.Txn, tableID int32, sql string) error {
	return s.store.Put(txn, store.CFViews, s.keysGenerator.encodeTableKey(tableID), &viewRecord{TableID: tableID, SQL: sql})
}

func (s *storage) DeleteView(txn *store.Txn, tableID int32) {
	s.store.Delete(txn, store.CFViews, s.keysGenerator.encodeTableKey(tableID))
}

func (s *storage) ListViews(ctx context.Context) (ret []*viewRecord, err error) {
	err = s.list(ctx, store.CFViews, nil, "view", func() interface{} {
		record := &viewRecord{}
		ret = append(ret, record)
		return record
	})
	return
}

func (s *storage) PutDict(txn *store.Txn, dd *proto.DictDescriptor) error {
	return s.store.Put(txn, store.CFDictionaries, s.keysGenerator.encodeDictKey(dd.DictRef.DictID), dd)
}

func (s *storage) DeleteDict(txn *store.Txn, dictID int32) {
	s.store.Delete(txn, store.CFDictionaries, s.keysGenerator.encodeDictKey(dictID))
}

func (s *storage) ListDicts(ctx context.Context) (ret []*proto.DictDescriptor, err error) {
	err = s.list(ctx, store.CFDictionaries, nil, "dictionary", func() interface{} {
		dd := &proto.DictDescriptor{}
		ret = append(ret, dd)
		return dd
	})
	return
}

func (s *storage) PutDashboard(txn *store.Txn, vd *proto.DashboardDescriptor) error {
	return s.store.Put(txn, store.CFDashboards, s.keysGenerator.encodeDashboardKey(vd.ViewID), vd)
}

func (s *storage) DeleteDashboard(txn *store.Txn, id int32) {
	s.store.Delete(txn, store.CFDashboards, s.keysGenerator.encodeDashboardKey(id))
}

func (s *storage) ListDashboards(ctx context.Context) (ret []*proto.DashboardDescriptor, err error) {
	err = s.list(ctx, store.CFDashboards, nil, "dashboard", func() interface{} {
		vd := &proto.DashboardDescriptor{}
		ret = append(ret, vd)
		return vd
	})
	return
}

// ListFrontendViews reads the rows dashboards were kept in before they got their own family.
func (s *storage) ListFrontendViews(ctx context.Context) (ret []*proto.DashboardDescriptor, err error) {
	err = s.list(ctx, store.CFFrontendViews, nil, "frontend view", func() interface{} {
		vd := &proto.DashboardDescriptor{}
		ret = append(ret, vd)
		return vd
	})
	return
}

func (s *storage) PutLink(txn *store.Txn, ld *proto.LinkDescriptor) error {
	return s.store.Put(txn, store.CFLinks, s.keysGenerator.encodeLinkKey(ld.LinkID), ld)
}

func (s *storage) ListLinks(ctx context.Context) (ret []*proto.LinkDescriptor, err error) {
	err = s.list(ctx, store.CFLinks, nil, "link", func() interface{} {
		ld := &proto.LinkDescriptor{}
		ret = append(ret, ld)
		return ld
	})
	return
}

func (s *storage) PutLogicalToPhysical(txn *store.Txn, logicalID, physicalID int32) error {
	return s.store.Put(txn, store.CFLogicalToPhysical, s.keysGenerator.encodeShardKey(logicalID, physicalID),
		&logicalToPhysicalRecord{LogicalTableID: logicalID, PhysicalTableID: physicalID})
}

func (s *storage) DeleteLogicalToPhysical(ctx context.Context, txn *store.Txn, logicalID int32) error {
	return s.store.DeletePrefix(ctx, txn, store.CFLogicalToPhysical, s.keysGenerator.encodeShardKeyPrefix(logicalID))
}

func (s *storage) ListLogicalToPhysical(ctx context.Context) (ret []*logicalToPhysicalRecord, err error) {
	err = s.list(ctx, store.CFLogicalToPhysical, nil, "logical to physical", func() interface{} {
		record := &logicalToPhysicalRecord{}
		ret = append(ret, record)
		return record
	})
	return
}

// list decodes every row of the family into the value returned by next.
func (s *storage) list(ctx context.Context, col kvstore.CF, prefix []byte, what string, next func() interface{}) error {
	return s.store.List(ctx, col, prefix, func(key, value []byte) error {
		if err := json.Unmarshal(value, next()); err != nil {
			return errors.Info(err, "decode "+what).Detail(err)
		}
		return nil
	})
}

type keysGenerator struct{}

func (k *keysGenerator) encodeTableKey(tableID int32) []byte {
	return store.EncodeID(tableID)
}

func (k *keysGenerator) encodeColumnKey(tableID, columnID int32) []byte {
	return store.JoinKey(store.EncodeID(tableID), store.EncodeID(columnID))
}

func (k *keysGenerator) encodeColumnKeyPrefix(tableID int32) []byte {
	return store.KeyPrefix(store.EncodeID(tableID))
}

func (k *keysGenerator) encodeDictKey(dictID int32) []byte {
	return store.EncodeID(dictID)
}

func (k *keysGenerator) encodeDashboardKey(id int32) []byte {
	return store.EncodeID(id)
}

func (k *keysGenerator) encodeLinkKey(id int32) []byte {
	return store.EncodeID(id)
}

func (k *keysGenerator) encodeShardKey(logicalID, physicalID int32) []byte {
	return store.JoinKey(store.EncodeID(logicalID), store.EncodeID(physicalID))
}

func (k *keysGenerator) encodeShardKeyPrefix(logicalID int32) []byte {
	return store.KeyPrefix(store.EncodeID(logicalID))
}
