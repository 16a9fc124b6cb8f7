package factorizedtable

// Vector is one column's worth of values for a batch passed to Append, or
// received back from Scan/Lookup. A flat vector carries a single value
// shared by every tuple in the batch; an unflat vector carries one value
// per tuple.
type Vector struct {
	Flat     bool
	ByteWidth int
	IsString bool

	// FixedData holds fixed-width column bytes: ByteWidth bytes for a flat
	// vector, selSize*ByteWidth for an unflat one.
	FixedData []byte
	// Strings holds raw string payloads for a string column: len 1 for a
	// flat vector, selSize for an unflat one.
	Strings [][]byte
	// Nulls marks per-logical-position nullness, same length convention as
	// FixedData/Strings (1 for flat, selSize for unflat).
	Nulls []bool
}

// SelSize returns the number of logical positions the vector carries: 1 for
// a flat vector, or the number of string/fixed entries for an unflat one.
func (v Vector) SelSize() int {
	if v.Flat {
		return 1
	}
	if v.IsString {
		return len(v.Strings)
	}
	if v.ByteWidth == 0 {
		return 0
	}
	return len(v.FixedData) / v.ByteWidth
}

// posFor returns the logical position to read for tuple i within a batch
// of n tuples: position 0 for a flat vector (broadcast), i otherwise.
func (v Vector) posFor(i int) int {
	if v.Flat {
		return 0
	}
	return i
}

func (v Vector) isNullAt(i int) bool {
	if len(v.Nulls) == 0 {
		return false
	}
	return v.Nulls[v.posFor(i)]
}

// IsNullAt reports whether logical tuple i's value is null.
func (v Vector) IsNullAt(i int) bool { return v.isNullAt(i) }

func (v Vector) fixedAt(i int) []byte {
	pos := v.posFor(i)
	return v.FixedData[pos*v.ByteWidth : (pos+1)*v.ByteWidth]
}

// FixedAt returns the raw fixed-width bytes for logical tuple i.
func (v Vector) FixedAt(i int) []byte { return v.fixedAt(i) }

func (v Vector) stringAt(i int) []byte {
	return v.Strings[v.posFor(i)]
}

// StringAt returns the raw string bytes for logical tuple i.
func (v Vector) StringAt(i int) []byte { return v.stringAt(i) }

// NewFlatFixed builds a flat vector around a single fixed-width value.
func NewFlatFixed(value []byte, isNull bool) Vector {
	return Vector{Flat: true, ByteWidth: len(value), FixedData: value, Nulls: []bool{isNull}}
}

// NewUnflatFixed builds an unflat vector from n fixed-width values packed
// contiguously in data (byteWidth bytes each).
func NewUnflatFixed(data []byte, byteWidth int, nulls []bool) Vector {
	return Vector{ByteWidth: byteWidth, FixedData: data, Nulls: nulls}
}

// NewFlatString builds a flat vector around a single string value.
func NewFlatString(value []byte, isNull bool) Vector {
	return Vector{Flat: true, IsString: true, Strings: [][]byte{value}, Nulls: []bool{isNull}}
}

// NewUnflatString builds an unflat vector from one string value per tuple.
func NewUnflatString(values [][]byte, nulls []bool) Vector {
	return Vector{IsString: true, Strings: values, Nulls: nulls}
}
