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

package store

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
)

const (
	MarkerInitialized = "initialized"
	// stores created at the current schema carry this marker and skip every migration
	MarkerCurrentSchema = "current_schema"
)

// NeedsMigration reports whether the named migration step has yet to run.
func (s *Store) NeedsMigration(ctx context.Context, name string) (bool, error) {
	for _, marker := range []string{name, MarkerCurrentSchema} {
		done, err := s.HasMarker(ctx, marker)
		if err != nil {
			return false, err
		}
		if done {
			return false, nil
		}
	}
	return true, nil
}

// Migrate runs fn and records the marker of the step in one transaction. A step
// that already ran is skipped.
func (s *Store) Migrate(ctx context.Context, name string, fn func(txn *Txn) error) error {
	span := trace.SpanFromContextSafe(ctx)

	need, err := s.NeedsMigration(ctx, name)
	if err != nil || !need {
		return err
	}
	err = s.Update(ctx, func(txn *Txn) error {
		if err := fn(txn); err != nil {
			return err
		}
		s.SetMarker(txn, name)
		return nil
	})
	if err != nil {
		span.Errorf("migration %s of store[%s] failed: %s", name, s.path, err)
		return err
	}
	span.Infof("migration %s of store[%s] applied", name, s.path)
	return nil
}

// MarkCurrentSchema flags a freshly created store as fully migrated.
func (s *Store) MarkCurrentSchema(txn *Txn) {
	s.SetMarker(txn, MarkerInitialized)
	s.SetMarker(txn, MarkerCurrentSchema)
}
