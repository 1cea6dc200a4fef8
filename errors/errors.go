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

package errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// error kinds, every catalog error unwraps to one of them
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInconsistency      = errors.New("catalog inconsistency")
	ErrTransactionFailure = errors.New("transaction failed")
)

var (
	ErrUserNotExist       = newError(ErrNotFound, "user does not exist")
	ErrUserAlreadyExist   = newError(ErrAlreadyExists, "user already exists")
	ErrRoleNotExist       = newError(ErrNotFound, "role does not exist")
	ErrRoleAlreadyExist   = newError(ErrAlreadyExists, "role already exists")
	ErrRoleNotGranted     = newError(ErrNotFound, "role has not been granted to the user")
	ErrUserRoleNameClash  = newError(ErrAlreadyExists, "user and role names must be unique")
	ErrDBNotExist         = newError(ErrNotFound, "database does not exist")
	ErrDBAlreadyExist     = newError(ErrAlreadyExists, "database already exists")
	ErrTableNotExist      = newError(ErrNotFound, "table does not exist")
	ErrTableAlreadyExist  = newError(ErrAlreadyExists, "table already exists")
	ErrColumnNotExist     = newError(ErrNotFound, "column does not exist")
	ErrColumnAlreadyExist = newError(ErrAlreadyExists, "column already exists")
	ErrDictNotExist       = newError(ErrNotFound, "dictionary does not exist")
	ErrDashboardNotExist  = newError(ErrNotFound, "dashboard does not exist")
	ErrLinkNotExist       = newError(ErrNotFound, "link does not exist")
	ErrObjectNotExist     = newError(ErrNotFound, "db object does not exist")

	ErrRootUserPrivileges = newError(ErrPermissionDenied, "root user has all privileges by default")
	ErrRoleNotUserRole    = newError(ErrInvalidArgument, "privileges are held by group roles only")
	ErrDropSystemDatabase = newError(ErrPermissionDenied, "the system database can not be dropped")
	ErrDropRootUser       = newError(ErrPermissionDenied, "the root user can not be dropped")
	ErrPrivilegesOff      = newError(ErrInvalidArgument, "role based access control is disabled")

	ErrReservedColumnName      = newError(ErrInvalidArgument, "rowid is a system defined column")
	ErrUnknownGeoType          = newError(ErrInvalidArgument, "unrecognized geometry type")
	ErrGeoInTemporaryTable     = newError(ErrInvalidArgument, "geometry types in temporary tables are not supported")
	ErrShardColumnInvalid      = newError(ErrInvalidArgument, "invalid shard column")
	ErrShardCountInvalid       = newError(ErrInvalidArgument, "shard count must be positive when a shard column is set")
	ErrSharedDictInvalid       = newError(ErrInvalidArgument, "malformed shared dictionary reference")
	ErrDuplicateColumn         = newError(ErrInvalidArgument, "duplicate column name")
	ErrDictRefcountUnderflow   = newError(ErrInconsistency, "dictionary refcount underflow")
	ErrDanglingColumn          = newError(ErrInconsistency, "column references an unknown table")
	ErrDanglingView            = newError(ErrInconsistency, "view references an unknown table")
	ErrDanglingShard           = newError(ErrInconsistency, "logical to physical map references an unknown table")
	ErrDanglingDictionary      = newError(ErrInconsistency, "column references an unknown dictionary")
	ErrShardEpochMismatch      = newError(ErrInconsistency, "table shards have different epochs")
	ErrMissingSystemDatabase   = newError(ErrInconsistency, "system database is missing")
	ErrTransactionAlreadyEnded = newError(ErrInvalidArgument, "transaction already committed or rolled back")
)

type kindError struct {
	kind error
	msg  string
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

type txnError struct {
	cause error
}

// TxnFailed marks err as a store failure inside a transaction that has been rolled back.
func TxnFailed(err error) error {
	if err == nil {
		return nil
	}
	return &txnError{cause: err}
}

func (e *txnError) Error() string {
	return "transaction failed: " + e.cause.Error()
}

func (e *txnError) Unwrap() error {
	return e.cause
}

func (e *txnError) Is(target error) bool {
	return target == ErrTransactionFailure
}

// Wrapf annotates err with a formatted message and the caller's stack.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
