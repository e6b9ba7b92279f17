package morse

import "strings"

// BitString is an immutable sequence of morse bits kept in textual '0'/'1' form.
// The zero value is the empty bit string.
type BitString struct {
	bits string
}

// NewBitString converts s into bit form: '1' stays '1', any other rune becomes '0'.
func NewBitString(s string) BitString {
	if isBits(s) {
		return BitString{bits: s}
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '1' {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return BitString{bits: b.String()}
}

func isBits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return true
}

func Zeros(n int) BitString {
	return BitString{bits: strings.Repeat("0", n)}
}

func Ones(n int) BitString {
	return BitString{bits: strings.Repeat("1", n)}
}

func (b BitString) Len() int {
	return len(b.bits)
}

// Bit reports whether bit i is set.
func (b BitString) Bit(i int) bool {
	return b.bits[i] == '1'
}

func (b BitString) String() string {
	return b.bits
}

func (b BitString) Append(other BitString) BitString {
	if other.bits == "" {
		return b
	}
	return BitString{bits: b.bits + other.bits}
}

func (b BitString) Slice(start, end int) BitString {
	return BitString{bits: b.bits[start:end]}
}

// Split cuts b around every occurrence of sep. An empty b yields a single empty
// element and trailing empty elements are kept.
func (b BitString) Split(sep BitString) []BitString {
	if b.bits == "" || sep.bits == "" {
		return []BitString{b}
	}
	parts := strings.Split(b.bits, sep.bits)
	out := make([]BitString, len(parts))
	for i, p := range parts {
		out[i] = BitString{bits: p}
	}
	return out
}

func (b BitString) HasSuffix(suffix BitString) bool {
	return strings.HasSuffix(b.bits, suffix.bits)
}

func (b BitString) Compare(other BitString) int {
	return strings.Compare(b.bits, other.bits)
}

func (b BitString) Equal(other BitString) bool {
	return b.bits == other.bits
}

// Trim strips leading and trailing zero runs.
func (b BitString) Trim() BitString {
	return BitString{bits: strings.Trim(b.bits, "0")}
}
