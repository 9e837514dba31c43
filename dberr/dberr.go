// Package dberr is the error taxonomy from spec §7: a flat set of sentinel
// kinds, not a type hierarchy. Every layer wraps these with fmt.Errorf's
// %w and an identifying name (table, column, key) so errors.Is still
// matches the kind while the message names the offender, matching the
// wrapping convention used throughout knotserver/git in the teacher repo.
package dberr

import "errors"

// Schema errors.
var (
	ErrTableNotFound      = errors.New("table not found")
	ErrTableAlreadyExists = errors.New("table already exists")
	ErrColumnNotFound     = errors.New("column not found")
	ErrPrimaryKeyMissing  = errors.New("primary key missing")
	ErrInvalidType        = errors.New("invalid type")
)

// Integrity errors.
var (
	ErrPrimaryKeyConflict = errors.New("primary key conflict")
	ErrNullInNonNullable  = errors.New("null in non-nullable column")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrInvalidKey         = errors.New("invalid primary key")
	ErrInvalidSchema      = errors.New("invalid schema")
)

// Transaction errors.
var (
	ErrNoActiveTransaction = errors.New("no active transaction")
	ErrNestedTransaction   = errors.New("nested transaction")
	ErrCommitConflict      = errors.New("commit conflict")
	ErrTransactionState    = errors.New("invalid transaction state transition")
)

// Storage errors.
var (
	ErrIO             = errors.New("io error")
	ErrCorruptBlob    = errors.New("corrupt blob")
	ErrRefUpdateFailed = errors.New("ref update failed")
	ErrBusy           = errors.New("database busy")
)

// Plan errors.
var (
	ErrUnsupportedFeature = errors.New("unsupported feature")
)

// Parse errors.
var (
	ErrSyntax = errors.New("syntax error")
)

// Row codec errors.
var (
	ErrNonFiniteReal = errors.New("non-finite real")
)

// ErrNotFound is a generic not-found kind. table.Get does not return it:
// a missing row is reported there as ok == false.
var ErrNotFound = errors.New("not found")
