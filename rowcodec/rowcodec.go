// Package rowcodec implements the bidirectional mapping between a typed Row
// and a blob payload described in spec §4.B: stable (depends only on the
// (column, value) set and the schema's canonical column order), round-trip,
// and self-describing (the wire form disambiguates type without consulting
// the schema).
//
// The wire format is one line per column, in schema column order:
//
//	<name>\t<tag>:<payload>\n
//
// tag is one of n (null), i (integer), r (real), t (text), b (boolean), x
// (blob, hex). Text and blob payloads are escaped so embedded tabs/newlines
// never break line framing.
package rowcodec

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/schema"
)

const (
	tagNull    = 'n'
	tagInt     = 'i'
	tagReal    = 'r'
	tagText    = 't'
	tagBool    = 'b'
	tagBlob    = 'x'
)

// Encode serializes row into its canonical byte form for table s. Column
// order is taken from s, not from the row map's (undefined) iteration
// order, which is what makes the output stable.
func Encode(row schema.Row, s *schema.Table) ([]byte, error) {
	var buf bytes.Buffer
	for _, col := range s.Columns {
		v, ok := row[col.Name]
		if !ok {
			v = schema.NullValue()
		}
		tag, payload, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("rowcodec: column %s: %w", col.Name, err)
		}
		buf.WriteString(escape(col.Name))
		buf.WriteByte('\t')
		buf.WriteByte(tag)
		buf.WriteByte(':')
		buf.WriteString(payload)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Decode parses data back into a Row, validating each value against s.
func Decode(data []byte, s *schema.Table) (schema.Row, error) {
	row := make(schema.Row, len(s.Columns))
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return nil, fmt.Errorf("rowcodec: %w: malformed line %q", dberr.ErrCorruptBlob, line)
		}
		name := unescape(line[:tab])
		rest := line[tab+1:]
		if len(rest) < 2 || rest[1] != ':' {
			return nil, fmt.Errorf("rowcodec: %w: malformed value for %s", dberr.ErrCorruptBlob, name)
		}
		v, err := decodeValue(rest[0], rest[2:])
		if err != nil {
			return nil, fmt.Errorf("rowcodec: column %s: %w", name, err)
		}
		row[name] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rowcodec: %w: %v", dberr.ErrCorruptBlob, err)
	}

	for _, col := range s.Columns {
		if _, ok := row[col.Name]; !ok {
			row[col.Name] = schema.NullValue()
		}
	}
	if err := Validate(row, s); err != nil {
		return nil, err
	}
	return row, nil
}

func encodeValue(v schema.Value) (byte, string, error) {
	switch v.Type() {
	case schema.Null:
		return tagNull, "", nil
	case schema.Integer:
		return tagInt, strconv.FormatInt(v.Int(), 10), nil
	case schema.Real:
		if !v.IsFiniteReal() {
			return 0, "", dberr.ErrNonFiniteReal
		}
		return tagReal, strconv.FormatFloat(v.Real(), 'g', -1, 64), nil
	case schema.Text:
		return tagText, escape(v.Text()), nil
	case schema.Boolean:
		if v.Bool() {
			return tagBool, "1", nil
		}
		return tagBool, "0", nil
	case schema.Blob:
		return tagBlob, hex.EncodeToString(v.Blob()), nil
	default:
		return 0, "", fmt.Errorf("%w: unknown value type", dberr.ErrInvalidType)
	}
}

func decodeValue(tag byte, payload string) (schema.Value, error) {
	switch tag {
	case tagNull:
		return schema.NullValue(), nil
	case tagInt:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return schema.Value{}, fmt.Errorf("%w: bad integer %q", dberr.ErrCorruptBlob, payload)
		}
		return schema.IntValue(n), nil
	case tagReal:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return schema.Value{}, fmt.Errorf("%w: bad real %q", dberr.ErrCorruptBlob, payload)
		}
		return schema.RealValue(f), nil
	case tagText:
		return schema.TextValue(unescape(payload)), nil
	case tagBool:
		return schema.BoolValue(payload == "1"), nil
	case tagBlob:
		b, err := hex.DecodeString(payload)
		if err != nil {
			return schema.Value{}, fmt.Errorf("%w: bad blob %q", dberr.ErrCorruptBlob, payload)
		}
		return schema.BlobValue(b), nil
	default:
		return schema.Value{}, fmt.Errorf("%w: unknown tag %q", dberr.ErrCorruptBlob, string(tag))
	}
}

// escape protects \, \t and \n so they never get mistaken for line/field
// framing; unescape is its exact inverse.
func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`)
	return r.Replace(s)
}

func unescape(s string) string {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				buf.WriteByte('\\')
				i++
				continue
			case 't':
				buf.WriteByte('\t')
				i++
				continue
			case 'n':
				buf.WriteByte('\n')
				i++
				continue
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}

// Validate checks a decoded-or-constructed row against schema-level
// integrity rules from spec §3/§4.D: no unknown columns, no null in a
// non-nullable column, and each value's type matches its column (permitting
// integer -> real widening only when the schema calls for real).
func Validate(row schema.Row, s *schema.Table) error {
	for name := range row {
		if _, ok := s.Column(name); !ok {
			return fmt.Errorf("%w: %s.%s", dberr.ErrColumnNotFound, s.Name, name)
		}
	}
	for _, col := range s.Columns {
		v, ok := row[col.Name]
		if !ok || v.IsNull() {
			if !col.Nullable {
				return fmt.Errorf("%w: %s.%s", dberr.ErrNullInNonNullable, s.Name, col.Name)
			}
			continue
		}
		if !typeMatches(v.Type(), col.Type) {
			return fmt.Errorf("%w: %s.%s expected %s, got %s", dberr.ErrTypeMismatch, s.Name, col.Name, col.Type, v.Type())
		}
	}
	return nil
}

func typeMatches(have, want schema.Type) bool {
	if have == want {
		return true
	}
	// Implicit widening: an integer is accepted where the schema requires
	// real (spec §3); no other cross-type value is.
	if want == schema.Real && have == schema.Integer {
		return true
	}
	return false
}
