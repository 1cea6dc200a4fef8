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

package proto

type SQLType int32

const (
	NullT SQLType = iota
	Boolean
	Char
	Varchar
	Numeric
	Decimal
	Int
	SmallInt
	Float
	Double
	Time
	Timestamp
	BigInt
	Text
	Date
	Array
	IntervalDayTime
	IntervalYearMonth
	Point
	LineString
	Polygon
	MultiPolygon
	TinyInt
)

var sqlTypeNames = map[SQLType]string{
	NullT:             "NULL",
	Boolean:           "BOOLEAN",
	Char:              "CHAR",
	Varchar:           "VARCHAR",
	Numeric:           "NUMERIC",
	Decimal:           "DECIMAL",
	Int:               "INTEGER",
	SmallInt:          "SMALLINT",
	Float:             "FLOAT",
	Double:            "DOUBLE",
	Time:              "TIME",
	Timestamp:         "TIMESTAMP",
	BigInt:            "BIGINT",
	Text:              "TEXT",
	Date:              "DATE",
	Array:             "ARRAY",
	IntervalDayTime:   "DAY TIME INTERVAL",
	IntervalYearMonth: "YEAR MONTH INTERVAL",
	Point:             "POINT",
	LineString:        "LINESTRING",
	Polygon:           "POLYGON",
	MultiPolygon:      "MULTIPOLYGON",
	TinyInt:           "TINYINT",
}

func (t SQLType) String() string {
	if name, ok := sqlTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

type EncodingType int32

const (
	EncodingNone EncodingType = iota
	EncodingFixed
	EncodingRL
	EncodingDiff
	EncodingDict
	EncodingSparse
	EncodingGeoInt
)

// SQLTypeInfo describes a column type. For dictionary encoded columns CompParam holds
// the bit width on input and the dictionary id once the column is created.
type SQLTypeInfo struct {
	Type        SQLType      `json:"type"`
	SubType     SQLType      `json:"sub_type"`
	Dimension   int32        `json:"dimension"`
	Scale       int32        `json:"scale"`
	NotNull     bool         `json:"not_null"`
	Compression EncodingType `json:"compression"`
	CompParam   int32        `json:"comp_param"`
	Size        int32        `json:"size"`
}

func NewSQLTypeInfo(t SQLType, notNull bool) SQLTypeInfo {
	return SQLTypeInfo{Type: t, NotNull: notNull, Size: typeSize(t)}
}

func NewArrayTypeInfo(sub SQLType, notNull bool) SQLTypeInfo {
	return SQLTypeInfo{Type: Array, SubType: sub, NotNull: notNull, Size: -1}
}

func (ti SQLTypeInfo) IsGeometry() bool {
	switch ti.Type {
	case Point, LineString, Polygon, MultiPolygon:
		return true
	}
	return false
}

func (ti SQLTypeInfo) IsArray() bool {
	return ti.Type == Array
}

func (ti SQLTypeInfo) IsString() bool {
	return isStringType(ti.Type)
}

func (ti SQLTypeInfo) IsDictEncoded() bool {
	return ti.Compression == EncodingDict
}

// IsDictEncodedString covers dictionary encoded strings and string arrays.
func (ti SQLTypeInfo) IsDictEncodedString() bool {
	if !ti.IsDictEncoded() {
		return false
	}
	return ti.IsString() || (ti.IsArray() && isStringType(ti.SubType))
}

func isStringType(t SQLType) bool {
	return t == Text || t == Varchar || t == Char
}

func typeSize(t SQLType) int32 {
	switch t {
	case Boolean, TinyInt:
		return 1
	case SmallInt:
		return 2
	case Int, Float:
		return 4
	case BigInt, Double, Numeric, Decimal, Time, Timestamp, Date, IntervalDayTime, IntervalYearMonth:
		return 8
	default:
		return -1
	}
}
