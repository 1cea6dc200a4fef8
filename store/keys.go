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
	"encoding/binary"
)

var keyInfix = []byte("/")

// EncodeID keeps the numeric order of non-negative ids, -1 sorts last.
func EncodeID(id int32) []byte {
	ret := make([]byte, 4)
	binary.BigEndian.PutUint32(ret, uint32(id))
	return ret
}

func DecodeID(raw []byte) int32 {
	return int32(binary.BigEndian.Uint32(raw))
}

// JoinKey joins key parts with the key infix.
func JoinKey(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p) + len(keyInfix)
	}
	ret := make([]byte, 0, size)
	for i, p := range parts {
		if i > 0 {
			ret = append(ret, keyInfix...)
		}
		ret = append(ret, p...)
	}
	return ret
}

// KeyPrefix is JoinKey with a trailing infix, for listing every key below parts.
func KeyPrefix(parts ...[]byte) []byte {
	return append(JoinKey(parts...), keyInfix...)
}
