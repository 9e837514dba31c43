package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gitdb-project/gitdb/dberr"
)

func TestValueEqual(t *testing.T) {
	assert.True(t, IntValue(1).Equal(IntValue(1)))
	assert.False(t, IntValue(1).Equal(RealValue(1.0)), "int and real are never equal under strict Equal")
	assert.True(t, NullValue().Equal(NullValue()))
	assert.True(t, BlobValue([]byte("abc")).Equal(BlobValue([]byte("abc"))))
}

func TestBlobValueCopies(t *testing.T) {
	data := []byte("abc")
	v := BlobValue(data)
	data[0] = 'z'
	assert.Equal(t, "abc", string(v.Blob()), "BlobValue must not alias its input")

	out := v.Blob()
	out[0] = 'z'
	assert.Equal(t, "abc", string(v.Blob()), "Blob() must not let callers mutate internal state")
}

func TestValidateRequiresExactlyOnePrimary(t *testing.T) {
	tbl := &Table{
		Name: "t",
		Columns: []ColumnDef{
			{Name: "id", Type: Integer, IsPrimary: true},
			{Name: "name", Type: Text, Nullable: true},
		},
		PrimaryIdx: 0,
	}
	assert.NoError(t, tbl.Validate())

	tbl.Columns[0].IsPrimary = false
	err := tbl.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrInvalidSchema))
}

func TestValidateRejectsNullablePrimary(t *testing.T) {
	tbl := &Table{
		Name: "t",
		Columns: []ColumnDef{
			{Name: "id", Type: Integer, IsPrimary: true, Nullable: true},
		},
		PrimaryIdx: 0,
	}
	assert.ErrorIs(t, tbl.Validate(), dberr.ErrInvalidSchema)
}

func TestValidateRejectsDuplicateColumns(t *testing.T) {
	tbl := &Table{
		Name: "t",
		Columns: []ColumnDef{
			{Name: "id", Type: Integer, IsPrimary: true},
			{Name: "id", Type: Text, Nullable: true},
		},
		PrimaryIdx: 0,
	}
	assert.ErrorIs(t, tbl.Validate(), dberr.ErrInvalidSchema)
}

func TestRowClone(t *testing.T) {
	r := Row{"a": IntValue(1)}
	c := r.Clone()
	c["a"] = IntValue(2)
	assert.Equal(t, int64(1), r["a"].Int(), "Clone must be independent of the original map")
}
