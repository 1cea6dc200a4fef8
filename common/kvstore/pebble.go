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


package kvstore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// pebble has no column families, every column is a key prefix of
// the form <col>\x00<key> inside one keyspace.
const pebbleColumnSep = byte(0)

type (
	pebbleStore struct {
		db       *pebble.DB
		writeOpt *pebble.WriteOptions
		columns  map[CF][]byte
	}
	pebbleListReader struct {
		iter    *pebble.Iterator
		skip    int
		started bool
	}
	pebbleWriteBatch struct {
		s     *pebbleStore
		batch *pebble.Batch
	}
)

func newPebble(ctx context.Context, path string, option *Option) (Store, error) {
	fs := option.FS
	if fs == nil {
		fs = vfs.Default
	}
	if option.CreateIfMissing {
		if err := fs.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
	} else if _, err := fs.Stat(path); err != nil {
		return nil, err
	}

	opts := &pebble.Options{FS: fs, DisableWAL: option.DisableWal}
	if option.MaxOpenFiles > 0 {
		opts.MaxOpenFiles = option.MaxOpenFiles
	}
	if option.WriteBufferSize > 0 {
		opts.MemTableSize = option.WriteBufferSize
	}
	if option.MaxWriteBufferNumber > 0 {
		opts.MemTableStopWritesThreshold = option.MaxWriteBufferNumber
	}
	if option.BlockCache > 0 {
		cache := pebble.NewCache(int64(option.BlockCache))
		defer cache.Unref()
		opts.Cache = cache
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := &pebbleStore{db: db, writeOpt: pebble.NoSync, columns: make(map[CF][]byte)}
	if option.Sync {
		s.writeOpt = pebble.Sync
	}
	for _, col := range append([]CF{defaultCF}, option.ColumnFamily...) {
		s.columns[col] = append([]byte(col), pebbleColumnSep)
	}
	return s, nil
}

func (lr *pebbleListReader) ReadNextCopy() (key []byte, value []byte, err error) {
	valid := lr.iter.Valid()
	if lr.started {
		valid = lr.iter.Next()
	}
	lr.started = true
	if err = lr.iter.Error(); err != nil || !valid {
		return nil, nil, err
	}
	key = append([]byte{}, lr.iter.Key()[lr.skip:]...)
	value = append([]byte{}, lr.iter.Value()...)
	return key, value, nil
}

func (lr *pebbleListReader) Close() {
	lr.iter.Close()
}

func (w *pebbleWriteBatch) Put(col CF, key, value []byte) {
	w.batch.Set(w.s.columnKey(col, key), value, nil)
}

func (w *pebbleWriteBatch) Delete(col CF, key []byte) {
	w.batch.Delete(w.s.columnKey(col, key), nil)
}

func (w *pebbleWriteBatch) DeleteRange(col CF, startKey, endKey []byte) {
	w.batch.DeleteRange(w.s.columnKey(col, startKey), w.s.columnKey(col, endKey), nil)
}

func (w *pebbleWriteBatch) Count() int {
	return int(w.batch.Count())
}

func (w *pebbleWriteBatch) Close() {
	w.batch.Close()
}

func (s *pebbleStore) NewWriteBatch() WriteBatch {
	return &pebbleWriteBatch{s: s, batch: s.db.NewBatch()}
}

func (s *pebbleStore) GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(s.columnKey(col, key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte{}, v...), nil
}

func (s *pebbleStore) List(ctx context.Context, col CF, prefix []byte) ListReader {
	lower := s.columnKey(col, prefix)
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: PrefixSuccessor(lower),
	})
	iter.First()
	return &pebbleListReader{iter: iter, skip: len(s.columns[s.column(col)])}
}

func (s *pebbleStore) Write(ctx context.Context, batch WriteBatch) error {
	return s.db.Apply(batch.(*pebbleWriteBatch).batch, s.writeOpt)
}

func (s *pebbleStore) Close() {
	s.db.Close()
}

func (s *pebbleStore) column(col CF) CF {
	if col == "" {
		return defaultCF
	}
	return col
}

// columns is read only once the store is open.
func (s *pebbleStore) columnKey(col CF, key []byte) []byte {
	prefix, ok := s.columns[s.column(col)]
	if !ok {
		panic(fmt.Sprintf("col:%s not exist", col.String()))
	}
	ret := make([]byte, 0, len(prefix)+len(key))
	return append(append(ret, prefix...), key...)
}
