// Copyright 2022 The CubeFS Authors.
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

package idgenerator

import (
	"context"

	"github.com/cubefs/catalogdb/store"
)

var cf = store.CFID

type storage struct {
	store *store.Store
}

func (s *storage) Load(ctx context.Context) (map[string]int32, error) {
	ret := make(map[string]int32)
	err := s.store.List(ctx, cf, nil, func(key, value []byte) error {
		ret[decodeName(key)] = decodeValue(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *storage) Put(txn *store.Txn, name string, current int32) {
	s.store.PutRaw(txn, cf, encodeName(name), encodeValue(current))
}

func encodeName(name string) []byte {
	return []byte(name)
}

func decodeName(raw []byte) string {
	return string(raw)
}

func encodeValue(current int32) []byte {
	return store.EncodeID(current)
}

func decodeValue(raw []byte) int32 {
	return store.DecodeID(raw)
}
