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
	"fmt"
	"os"

	rdb "github.com/tecbot/gorocksdb"
)

type (
	rocksdb struct {
		db       *rdb.DB
		opt      *rdb.Options
		readOpt  *rdb.ReadOptions
		writeOpt *rdb.WriteOptions
		// read only once the store is open
		handles map[CF]*rdb.ColumnFamilyHandle
	}
	listReader struct {
		iter    *rdb.Iterator
		prefix  []byte
		started bool
	}
	writeBatch struct {
		s     *rocksdb
		batch *rdb.WriteBatch
	}
)

func newRocksdb(ctx context.Context, path string, option *Option) (Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	opt := rocksdbOptions(option)
	cols := append([]CF{defaultCF}, option.ColumnFamily...)
	names := make([]string, len(cols))
	colOpts := make([]*rdb.Options, len(cols))
	for i, col := range cols {
		names[i] = col.String()
		colOpts[i] = opt
	}
	db, handles, err := rdb.OpenDbColumnFamilies(opt, path, names, colOpts)
	if err != nil {
		opt.Destroy()
		return nil, err
	}

	s := &rocksdb{
		db:       db,
		opt:      opt,
		readOpt:  rdb.NewDefaultReadOptions(),
		writeOpt: rdb.NewDefaultWriteOptions(),
		handles:  make(map[CF]*rdb.ColumnFamilyHandle, len(cols)),
	}
	s.writeOpt.SetSync(option.Sync)
	s.writeOpt.DisableWAL(option.DisableWal)
	for i, h := range handles {
		s.handles[cols[i]] = h
	}
	return s, nil
}

func (lr *listReader) ReadNextCopy() (key []byte, value []byte, err error) {
	if lr.started {
		lr.iter.Next()
	}
	lr.started = true
	if err = lr.iter.Err(); err != nil {
		return nil, nil, err
	}
	if !lr.iter.Valid() || (lr.prefix != nil && !lr.iter.ValidForPrefix(lr.prefix)) {
		return nil, nil, nil
	}
	k, v := lr.iter.Key(), lr.iter.Value()
	key = append([]byte{}, k.Data()...)
	value = append([]byte{}, v.Data()...)
	k.Free()
	v.Free()
	return key, value, nil
}

func (lr *listReader) Close() {
	lr.iter.Close()
}

func (w *writeBatch) Put(col CF, key, value []byte) {
	w.batch.PutCF(w.s.handle(col), key, value)
}

func (w *writeBatch) Delete(col CF, key []byte) {
	w.batch.DeleteCF(w.s.handle(col), key)
}

func (w *writeBatch) DeleteRange(col CF, startKey, endKey []byte) {
	w.batch.DeleteRangeCF(w.s.handle(col), startKey, endKey)
}

func (w *writeBatch) Count() int {
	return w.batch.Count()
}

func (w *writeBatch) Close() {
	w.batch.Destroy()
}

func (s *rocksdb) NewWriteBatch() WriteBatch {
	return &writeBatch{s: s, batch: rdb.NewWriteBatch()}
}

func (s *rocksdb) GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error) {
	v, err := s.db.GetCF(s.readOpt, s.handle(col), key)
	if err != nil {
		return nil, err
	}
	defer v.Free()
	if !v.Exists() {
		return nil, ErrNotFound
	}
	return append([]byte{}, v.Data()...), nil
}

func (s *rocksdb) List(ctx context.Context, col CF, prefix []byte) ListReader {
	iter := s.db.NewIteratorCF(s.readOpt, s.handle(col))
	if prefix != nil {
		iter.Seek(prefix)
	} else {
		iter.SeekToFirst()
	}
	return &listReader{iter: iter, prefix: prefix}
}

func (s *rocksdb) Write(ctx context.Context, batch WriteBatch) error {
	return s.db.Write(s.writeOpt, batch.(*writeBatch).batch)
}

func (s *rocksdb) Close() {
	for _, h := range s.handles {
		h.Destroy()
	}
	s.db.Close()
	s.readOpt.Destroy()
	s.writeOpt.Destroy()
	s.opt.Destroy()
}

func (s *rocksdb) handle(col CF) *rdb.ColumnFamilyHandle {
	if col == "" {
		col = defaultCF
	}
	h, ok := s.handles[col]
	if !ok {
		panic(fmt.Sprintf("col:%s not exist", col.String()))
	}
	return h
}

func rocksdbOptions(option *Option) *rdb.Options {
	table := rdb.NewDefaultBlockBasedTableOptions()
	if option.BlockSize > 0 {
		table.SetBlockSize(option.BlockSize)
	}
	if option.BlockCache > 0 {
		table.SetBlockCache(rdb.NewLRUCache(option.BlockCache))
	}

	opt := rdb.NewDefaultOptions()
	opt.SetBlockBasedTableFactory(table)
	opt.SetCreateIfMissing(option.CreateIfMissing)
	opt.SetCreateIfMissingColumnFamilies(true)
	opt.SetStatsDumpPeriodSec(0)
	if option.MaxOpenFiles > 0 {
		opt.SetMaxOpenFiles(option.MaxOpenFiles)
	}
	if option.WriteBufferSize > 0 {
		opt.SetWriteBufferSize(option.WriteBufferSize)
	}
	if option.MaxWriteBufferNumber > 0 {
		opt.SetMaxWriteBufferNumber(option.MaxWriteBufferNumber)
	}
	return opt
}
