// Package table implements component D: per-row storage within a table's
// directory. Every row is one blob, named by an encoding of its primary key
// value (spec §3, §4.D). Primary key values come from callers (ultimately
// SQL statement text), so a key is held to the same "one path segment,
// never escapes the directory" discipline the teacher applies to
// filesystem paths built from untrusted request input — except here the
// directory is a git tree entry, not a real filesystem path, so the check
// is a lexical one rather than a securejoin-style real-path resolution.
package table

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/rowcodec"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/view"
)

// Table is a handle for reading and proposing writes against one table's
// rows within a view.Snapshot. It is schema-bound: the caller (txn) is
// responsible for fetching the current schema.Table from the catalog before
// constructing one, and for discarding it once the schema changes.
type Table struct {
	snap   *view.Snapshot
	schema *schema.Table
}

// Open binds s to the rows of the named table as they exist in snap.
func Open(snap *view.Snapshot, s *schema.Table) *Table {
	return &Table{snap: snap, schema: s}
}

// Schema returns the bound schema.
func (t *Table) Schema() *schema.Table { return t.schema }

// KeyName encodes a primary key value into the blob name it is stored
// under. Integer keys use decimal text, text keys are used directly; either
// way the result must name exactly one entry of the table's tree, never
// "." / ".." nor contain a path separator or control character (spec §6).
func KeyName(pk schema.Value) (string, error) {
	var raw string
	switch pk.Type() {
	case schema.Integer:
		raw = fmt.Sprintf("%d", pk.Int())
	case schema.Text:
		raw = pk.Text()
	default:
		return "", fmt.Errorf("%w: primary key must be INTEGER or TEXT, got %s", dberr.ErrInvalidKey, pk.Type())
	}
	if raw == "" || raw == "." || raw == ".." ||
		strings.ContainsAny(raw, "/\\") || hasControlByte(raw) {
		return "", fmt.Errorf("%w: %q is not a valid row key", dberr.ErrInvalidKey, raw)
	}
	return raw, nil
}

// hasControlByte reports whether s contains any ASCII control character
// (below 0x20, or DEL at 0x7f), byte-wise rather than rune-wise since a key
// is stored as a tree-entry name and any such byte is unsafe there
// regardless of whether it forms part of a valid UTF-8 sequence.
func hasControlByte(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

// Get fetches one row by primary key. ok is false if no such row exists.
func (t *Table) Get(pk schema.Value) (schema.Row, bool, error) {
	name, err := KeyName(pk)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := t.snap.ReadFile(t.schema.Name, name)
	if err != nil {
		return nil, false, fmt.Errorf("table: reading %s/%s: %w", t.schema.Name, name, err)
	}
	if !ok {
		return nil, false, nil
	}
	row, err := rowcodec.Decode(data, t.schema)
	if err != nil {
		return nil, false, fmt.Errorf("table: decoding %s/%s: %w", t.schema.Name, name, err)
	}
	return row, true, nil
}

// Scan calls fn for every row in the table, in blob-name (i.e. primary-key
// text) order, stopping early if fn returns false. This is the only
// iteration primitive component D offers; ordering and filtering beyond
// primary-key order are the executor's job (spec §4.J).
func (t *Table) Scan(fn func(row schema.Row) (bool, error)) error {
	entries, err := t.snap.ListDir(t.schema.Name)
	if err != nil {
		return fmt.Errorf("table: listing %s: %w", t.schema.Name, err)
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, ok, err := t.snap.ReadFile(t.schema.Name, name)
		if err != nil {
			return fmt.Errorf("table: reading %s/%s: %w", t.schema.Name, name, err)
		}
		if !ok {
			continue // deleted concurrently within this same Scan call's directory listing snapshot
		}
		row, err := rowcodec.Decode(data, t.schema)
		if err != nil {
			return fmt.Errorf("table: decoding %s/%s: %w", t.schema.Name, name, err)
		}
		cont, err := fn(row)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}

// Count returns the exact number of rows by listing the directory. Callers
// wanting an approximate, cheap count for planning purposes should use the
// stats package instead (spec §9).
func (t *Table) Count() (int, error) {
	entries, err := t.snap.ListDir(t.schema.Name)
	if err != nil {
		return 0, fmt.Errorf("table: counting %s: %w", t.schema.Name, err)
	}
	return len(entries), nil
}

// InsertOp validates row against the schema and uniqueness, encodes it, and
// returns the view.DirOp that creates its blob. It checks for an existing
// row with the same key against the bound snapshot and fails with
// dberr.ErrPrimaryKeyConflict rather than silently overwriting it (spec
// §4.D, §8 property 2).
func (t *Table) InsertOp(row schema.Row) (view.DirOp, error) {
	pk, name, err := t.validateAndKey(row)
	if err != nil {
		return view.DirOp{}, err
	}
	_, exists, err := t.Get(pk)
	if err != nil {
		return view.DirOp{}, err
	}
	if exists {
		return view.DirOp{}, fmt.Errorf("%w: %s primary key %v", dberr.ErrPrimaryKeyConflict, t.schema.Name, pk)
	}
	return t.putOp(row, name)
}

// UpdateOp is InsertOp's counterpart for a row whose primary key is already
// present: same validation and encoding, same DirOp shape, since a blob put
// either creates or overwrites a name — but, unlike InsertOp, it does not
// require (or check for) a pre-existing row, since callers reach it with a
// row already read from the table they're updating.
func (t *Table) UpdateOp(row schema.Row) (view.DirOp, error) {
	_, name, err := t.validateAndKey(row)
	if err != nil {
		return view.DirOp{}, err
	}
	return t.putOp(row, name)
}

// validateAndKey runs row through schema validation and returns its primary
// key value and blob name, shared by InsertOp and UpdateOp ahead of their
// differing existence checks.
func (t *Table) validateAndKey(row schema.Row) (schema.Value, string, error) {
	if err := rowcodec.Validate(row, t.schema); err != nil {
		return schema.Value{}, "", err
	}
	pk, ok := row[t.schema.Primary().Name]
	if !ok || pk.IsNull() {
		return schema.Value{}, "", fmt.Errorf("%w: %s", dberr.ErrPrimaryKeyMissing, t.schema.Name)
	}
	name, err := KeyName(pk)
	if err != nil {
		return schema.Value{}, "", err
	}
	return pk, name, nil
}

// putOp encodes row and returns the DirOp that writes it under name.
func (t *Table) putOp(row schema.Row, name string) (view.DirOp, error) {
	data, err := rowcodec.Encode(row, t.schema)
	if err != nil {
		return view.DirOp{}, fmt.Errorf("table: encoding row for %s: %w", t.schema.Name, err)
	}
	return view.DirOp{
		Dir: t.schema.Name,
		Put: map[string][]byte{name: data},
	}, nil
}

// DeleteOp returns the DirOp that removes the row with primary key pk.
func (t *Table) DeleteOp(pk schema.Value) (view.DirOp, error) {
	name, err := KeyName(pk)
	if err != nil {
		return view.DirOp{}, err
	}
	return view.DirOp{
		Dir:    t.schema.Name,
		Delete: []string{name},
	}, nil
}
