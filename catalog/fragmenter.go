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
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/metrics"
	"github.com/cubefs/catalogdb/proto"
)

// Fragmenter returns the fragmenter of the table, building it on first use. Views
// have none. The build enumerates every column and runs without the catalog lock,
// a build that races with truncate, epoch rollback or drop is thrown away.
func (c *Catalog) Fragmenter(ctx context.Context, tableID int32) (Fragmenter, error) {
	span := trace.SpanFromContextSafe(ctx)
	for {
		c.lock.RLock()
		entry, ok := c.tables[tableID]
		if !ok {
			c.lock.RUnlock()
			return nil, apierrors.Wrapf(apierrors.ErrTableNotExist, "table id %d in database %s", tableID, c.db.DBName)
		}
		if entry.fragmenter != nil || entry.td.IsView {
			f := entry.fragmenter
			c.lock.RUnlock()
			return f, nil
		}
		generation := entry.generation
		td := entry.td.Clone()
		columns := c.columnsOf(tableID)
		for i := range columns {
			columns[i] = columns[i].Clone()
		}
		c.lock.RUnlock()

		key := "table/" + strconv.Itoa(int(tableID)) + "/" + strconv.FormatUint(generation, 10)
		v, err, _ := c.singleRun.Do(key, func() (interface{}, error) {
			start := time.Now()
			f, err := c.cfg.Fragmenters.NewFragmenter(ctx, proto.ChunkKey{c.db.DBID, tableID}, columns, td)
			if err != nil {
				span.Errorf("instantiate fragmenter of table %s failed: %s", td.TableName, err)
				return nil, err
			}
			metrics.ObserveFragmenter(start)

			c.lock.Lock()
			defer c.lock.Unlock()
			entry, ok := c.tables[tableID]
			if !ok || entry.generation != generation || entry.fragmenter != nil {
				f.Close()
				return nil, nil
			}
			entry.fragmenter = f
			span.Infof("fragmenter of table %s instantiated, cost: %s", td.TableName, time.Since(start))
			return f, nil
		})
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v.(Fragmenter), nil
		}
	}
}

// detachFragmenter invalidates the fragmenter of the table, the caller closes it
// once the catalog lock is released.
func (c *Catalog) detachFragmenter(entry *tableEntry) Fragmenter {
	f := entry.fragmenter
	entry.fragmenter = nil
	entry.generation++
	return f
}
