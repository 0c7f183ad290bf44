package storage

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// The decision log is read by existing consumers that expect the exact byte
// layout of Python's json.dumps with default arguments: ", " and ": "
// separators, repr floats, ASCII-only strings.

// EncodeLine renders rec as one log line including the trailing newline.
// Keys appear in the fixed order timestamp, y, z, f, risk_band, triggers, hex.
func EncodeLine(rec *Record) []byte {
	var b strings.Builder
	b.Grow(160 + len(rec.Hex))

	b.WriteString(`{"timestamp": `)
	writeString(&b, FormatTimestamp(rec.Timestamp))
	b.WriteString(`, "y": `)
	b.WriteString(FormatFloat(rec.Y))
	b.WriteString(`, "z": `)
	b.WriteString(FormatFloat(rec.Z))
	b.WriteString(`, "f": `)
	b.WriteString(FormatFloat(rec.F))
	b.WriteString(`, "risk_band": `)
	writeString(&b, rec.RiskBand)
	b.WriteString(`, "triggers": [`)
	for i, t := range rec.Triggers {
		if i > 0 {
			b.WriteString(", ")
		}
		writeString(&b, t)
	}
	b.WriteString(`], "hex": `)
	writeString(&b, rec.Hex)
	b.WriteString("}\n")

	return []byte(b.String())
}

// FormatTimestamp renders t as naive UTC ISO-8601. Microseconds are appended
// only when non-zero and sub-microsecond precision is truncated.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	s := t.Format("2006-01-02T15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		frac := strconv.Itoa(us)
		s += "." + strings.Repeat("0", 6-len(frac)) + frac
	}
	return s
}

// FormatFloat renders v as the shortest round-tripping decimal, in fixed
// notation for exponents in [-4, 16) and scientific notation otherwise.
// Integral values keep a trailing ".0".
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

const hexDigits = "0123456789abcdef"

// writeString writes s as a quoted JSON string with every rune outside
// printable ASCII escaped as \uXXXX (surrogate pairs above the BMP).
func writeString(b *strings.Builder, s string) {
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
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				b.WriteRune(r)
			case r > 0xffff:
				r -= 0x10000
				writeU16(b, 0xd800|((r>>10)&0x3ff))
				writeU16(b, 0xdc00|(r&0x3ff))
			default:
				writeU16(b, r)
			}
		}
	}
	b.WriteByte('"')
}

func writeU16(b *strings.Builder, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(hexDigits[(r>>12)&0xf])
	b.WriteByte(hexDigits[(r>>8)&0xf])
	b.WriteByte(hexDigits[(r>>4)&0xf])
	b.WriteByte(hexDigits[r&0xf])
}
