// Package canon produces the one byte-exact encoding a case's ranking
// snapshot is hashed from. Two implementations agree on a signature iff
// they emit the identical byte string for the identical logical ranking,
// so the encoding is written out explicitly here rather than delegated to
// encoding/json's default Marshal, whose map-key ordering and escaping
// behavior are not a contract this package wants to depend on.
package canon

import (
	"fmt"
	"strconv"
	"strings"
)

// RankRow is one row of a ranking snapshot, in the fixed field order the
// encoder emits: rank, remedy, score.
type RankRow struct {
	Rank   int     `json:"rank"`
	Remedy string  `json:"remedy"`
	Score  float64 `json:"score"`
}

// Encode renders rows as a JSON array of objects with keys in the fixed
// order rank, remedy, score; comma/colon-only separators; no trailing
// newline; scores rendered via their shortest round-trip representation.
func Encode(rows []RankRow) []byte {
	var b strings.Builder
	b.WriteByte('[')
	for i, r := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('{')
		b.WriteString(`"rank":`)
		b.WriteString(strconv.Itoa(r.Rank))
		b.WriteByte(',')
		b.WriteString(`"remedy":`)
		b.WriteString(encodeString(r.Remedy))
		b.WriteByte(',')
		b.WriteString(`"score":`)
		b.WriteString(encodeFloat(r.Score))
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return []byte(b.String())
}

// encodeFloat renders f as its shortest round-trip decimal
// representation, forcing a ".0" suffix when the result would otherwise
// read as an integer (e.g. "3" rather than "3.0") so every score
// unambiguously encodes as a JSON number, not something a naive reader
// might mistake for an integer type.
func encodeFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// encodeString renders a Go string as a JSON string literal, escaping
// only what JSON requires (quote, backslash, and control characters) —
// no additional HTML or unicode escaping, so non-ASCII remedy names
// round-trip as UTF-8 rather than being inflated into \uXXXX sequences.
func encodeString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
