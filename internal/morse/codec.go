package morse

import (
	"strings"
	"unicode"
)

var (
	// CharBreak separates characters inside a word.
	CharBreak = Zeros(3)
	// WordBreak separates words.
	WordBreak = Zeros(7)

	// EndMessage is the locally appended stop-message pattern.
	EndMessage = PatternFor(StopMessage)
	// EndSequence terminates messages cut short by the decoder.
	EndSequence = CharBreak.Append(EndMessage)
	// EndContact terminates messages ended by the sender.
	EndContact = CharBreak.Append(PatternFor(EndOfContact)).Append(CharBreak)
)

// Encode converts message text to morse bits. Unsupported characters are
// dropped and runs of spaces collapse into a single word break.
func Encode(message string) BitString {
	var out strings.Builder
	charStop := false
	wordStop := false

	for _, r := range message {
		if r == ' ' {
			if !charStop {
				continue
			}
			charStop = false
			wordStop = true
			continue
		}

		pattern := PatternFor(r)
		if pattern.Len() == 0 {
			continue
		}
		if charStop {
			out.WriteString(CharBreak.bits)
			charStop = false
		}
		if wordStop {
			out.WriteString(WordBreak.bits)
			wordStop = false
		}
		out.WriteString(pattern.bits)
		charStop = true
	}
	return BitString{bits: out.String()}
}

// Decode converts morse bits to text. Patterns without a table entry decode to
// Unknown; decoding never fails.
func Decode(bits BitString) string {
	var out strings.Builder
	firstWord := true

	for _, word := range bits.Trim().Split(WordBreak) {
		// senders may pad with stray zeros
		word = word.Trim()
		if word.Len() == 0 {
			continue
		}
		if !firstWord {
			out.WriteByte(' ')
		}
		firstWord = false

		for _, char := range word.Split(CharBreak) {
			out.WriteRune(Lookup(char.Trim()))
		}
	}
	return out.String()
}

// Render applies receiver display rules to decoded text: SOS is spelled out,
// message terminators become spaces and remaining control characters are dropped.
func Render(decoded string) string {
	var out strings.Builder
	for _, r := range decoded {
		switch r {
		case SOS:
			out.WriteString("¡SOS!")
			continue
		case EndOfContact, EndOfMessage, StopMessage:
			out.WriteByte(' ')
			continue
		}
		if unicode.IsUpper(r) {
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}
