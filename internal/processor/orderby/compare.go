package orderby

import "bytes"

// Resolver fetches the real value for a sort column given a key's tuple
// reference, used to break ties the encoded prefix alone can't resolve
// (string columns truncated to stringKeyWidth). ok is false if the source
// value is null.
type Resolver func(ref TupleRef, sourceColumn int) (value []byte, ok bool)

// Less reports whether key a sorts strictly before key b under layout's
// column order, falling back to resolver lookups for string columns once
// the encoded prefixes tie exactly.
func Less(layout *Layout, a, b []byte, resolve Resolver) bool {
	prefixA, prefixB := a[:layout.PrefixWidth], b[:layout.PrefixWidth]
	if c := bytes.Compare(prefixA, prefixB); c != 0 {
		return c < 0
	}
	if !hasStringColumn(layout) || resolve == nil {
		return false
	}

	refA := decodeTupleRef(a[layout.PrefixWidth:])
	refB := decodeTupleRef(b[layout.PrefixWidth:])
	for _, spec := range layout.Columns {
		if spec.Type != TypeString {
			continue
		}
		va, okA := resolve(refA, spec.SourceColumn)
		vb, okB := resolve(refB, spec.SourceColumn)
		if okA != okB {
			// Nulls sort last for an ascending column and first for a
			// descending one, matching the encoded null-byte convention
			// in encodeColumn.
			if spec.Ascending {
				return okA
			}
			return okB
		}
		if !okA {
			continue
		}
		c := bytes.Compare(va, vb)
		if c == 0 {
			continue
		}
		if spec.Ascending {
			return c < 0
		}
		return c > 0
	}
	return false
}

func hasStringColumn(layout *Layout) bool {
	for _, c := range layout.Columns {
		if c.Type == TypeString {
			return true
		}
	}
	return false
}
