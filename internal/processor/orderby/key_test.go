package orderby

import "testing"

func TestEncodeDecodeInt64_PreservesOrder(t *testing.T) {
	values := []int64{-9223372036854775808, -1000, -1, 0, 1, 1000, 9223372036854775807}
	var encoded [][]byte
	for _, v := range values {
		b := make([]byte, 8)
		encodeInt64(b, v)
		encoded = append(encoded, b)
	}
	for i := 1; i < len(encoded); i++ {
		if bytesCompare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("encode(%d) >= encode(%d), want strictly increasing", values[i-1], values[i])
		}
	}
	for i, v := range values {
		if got := decodeInt64(encoded[i]); got != v {
			t.Fatalf("decodeInt64(encodeInt64(%d)) = %d", v, got)
		}
	}
}

func TestEncodeDecodeFloat64_PreservesOrder(t *testing.T) {
	values := []float64{-1e300, -1.5, -0.0001, 0, 0.0001, 1.5, 1e300}
	var encoded [][]byte
	for _, v := range values {
		b := make([]byte, 8)
		encodeFloat64(b, v)
		encoded = append(encoded, b)
	}
	for i := 1; i < len(encoded); i++ {
		if bytesCompare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("encode(%v) >= encode(%v), want strictly increasing", values[i-1], values[i])
		}
	}
	for i, v := range values {
		if got := decodeFloat64(encoded[i]); got != v {
			t.Fatalf("decodeFloat64(encodeFloat64(%v)) = %v", v, got)
		}
	}
}

func TestTupleRef_RoundTrips(t *testing.T) {
	ref := TupleRef{TableID: 7, Index: 123456, BlockOffset: 42}
	b := make([]byte, tailWidth)
	encodeTupleRef(b, ref)
	got := decodeTupleRef(b)
	if got != ref {
		t.Fatalf("decodeTupleRef(encodeTupleRef(%+v)) = %+v", ref, got)
	}
}

func TestInvert_IsSelfInverse(t *testing.T) {
	b := []byte{0x00, 0xFF, 0x3C, 0xA5}
	orig := append([]byte{}, b...)
	invert(b)
	invert(b)
	for i := range b {
		if b[i] != orig[i] {
			t.Fatalf("invert(invert(b)) != b")
		}
	}
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
