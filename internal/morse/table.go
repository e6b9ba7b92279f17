package morse

import (
	"sort"
	"unicode"
)

// Reserved control characters. They travel as regular table entries but are
// upper-case so they can never be typed as message text.
const (
	StartOfMessage rune = 'S'
	EndOfContact   rune = 'C'
	EndOfMessage   rune = 'E'
	SOS            rune = 'X'
	Break          rune = 'B'
	OffAir         rune = 'O'
	Understood     rune = 'U'

	// StopMessage is never transmitted. The decoder appends it locally to
	// terminate a message it had to cut short.
	StopMessage rune = '©'

	// Unknown is returned for bit patterns that match no entry.
	Unknown rune = 'Z'
)

// Entry maps one bit pattern to one character.
type Entry struct {
	Pattern BitString
	Char    rune
}

type table struct {
	entries []Entry
	byChar  map[rune]BitString
	allowed map[rune]struct{}
	longest int
}

var (
	codes    = buildTable()
	rawTable = []struct {
		pattern string
		char    rune
	}{
		// end-of-contact three times, only used locally
		{"1010101110101110" + "1010101110101110" + "101010111010111", StopMessage},

		{"1110101010111010111", Break},
		{"111010111010101110101", OffAir},
		{"111010111010111", StartOfMessage},
		{"101010111010111", EndOfContact},
		{"10101011101", Understood},
		{"10101011101110111010101", SOS},
		// new line, go, wait, end-of-message, named reply and new paragraph
		// share patterns with 'ä', 'k', '&', '+', '(' and '=' and stay disabled.

		{"10111", 'a'},
		{"111010101", 'b'},
		{"11101011101", 'c'},
		{"1110101", 'd'},
		{"1", 'e'},
		{"101011101", 'f'},
		{"111011101", 'g'},
		{"1010101", 'h'},
		{"101", 'i'},
		{"1011101110111", 'j'},
		{"111010111", 'k'},
		{"101110101", 'l'},
		{"1110111", 'm'},
		{"11101", 'n'},
		{"11101110111", 'o'},
		{"10111011101", 'p'},
		{"1110111010111", 'q'},
		{"1011101", 'r'},
		{"10101", 's'},
		{"111", 't'},
		{"1010111", 'u'},
		{"101010111", 'v'},
		{"101110111", 'w'},
		{"11101010111", 'x'},
		{"1110101110111", 'y'},
		{"11101110101", 'z'},
		{"101110111010111", 'å'},
		{"10111010111", 'ä'},
		{"1110111011101", 'ö'},
		{"1110111011101110111", '0'},
		{"10111011101110111", '1'},
		{"101011101110111", '2'},
		{"1010101110111", '3'},
		{"10101010111", '4'},
		{"101010101", '5'},
		{"11101010101", '6'},
		{"1110111010101", '7'},
		{"111011101110101", '8'},
		{"11101110111011101", '9'},
		{"10111010111010111", '.'},
		{"1110111010101110111", ','},
		{"101011101110101", '?'},
		{"1011101110111011101", '\''},
		{"1110101110101110111", '!'},
		{"1110101011101", '/'},
		{"111010111011101", '('},
		{"1110101110111010111", ')'},
		{"10111010101", '&'},
		{"11101110111010101", ':'},
		{"11101011101011101", ';'},
		{"1110101010111", '='},
		{"1011101011101", '+'},
		{"111010101010111", '-'},
		{"10101110111010111", '_'},
		{"101110101011101", '"'},
		{"10101011101010111", '$'},
		{"10111011101011101", '@'},
	}
)

func buildTable() table {
	t := table{
		entries: make([]Entry, 0, len(rawTable)),
		byChar:  make(map[rune]BitString, len(rawTable)),
		allowed: make(map[rune]struct{}, len(rawTable)),
	}
	for _, raw := range rawTable {
		bits := NewBitString(raw.pattern)
		t.entries = append(t.entries, Entry{Pattern: bits, Char: raw.char})
		t.byChar[raw.char] = bits
		if raw.char == StopMessage {
			continue
		}
		if !unicode.IsUpper(raw.char) {
			t.allowed[raw.char] = struct{}{}
		}
		if bits.Len() > t.longest {
			t.longest = bits.Len()
		}
	}
	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].Pattern.Compare(t.entries[j].Pattern) < 0
	})
	return t
}

// Lookup returns the character for an exact bit pattern, or Unknown.
func Lookup(bits BitString) rune {
	i := sort.Search(len(codes.entries), func(i int) bool {
		return codes.entries[i].Pattern.Compare(bits) >= 0
	})
	if i < len(codes.entries) && codes.entries[i].Pattern.Equal(bits) {
		return codes.entries[i].Char
	}
	return Unknown
}

// PatternFor returns the bit pattern of r, empty when r has no pattern.
func PatternFor(r rune) BitString {
	return codes.byChar[r]
}

// Allowed reports whether r may appear in user-typed message text.
func Allowed(r rune) bool {
	if r == ' ' {
		return true
	}
	_, ok := codes.allowed[r]
	return ok
}

// LongestPattern is the longest receivable pattern length, stop-message excluded.
func LongestPattern() int {
	return codes.longest
}

// Entries returns the table sorted by pattern.
func Entries() []Entry {
	out := make([]Entry, len(codes.entries))
	copy(out, codes.entries)
	return out
}
