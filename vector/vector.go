// Read FIFO vectors from text files.
//
// A vector file is a loose CSV of unsigned 32-bit integers, in
// decimal, hex (0x prefix) or octal (leading 0), one or more per line
// separated by commas.  Blank lines and comment lines beginning with
// "#" or "//" are skipped.  Values are returned in file order, which
// is the order they get written to the FIFO.
//
// The parser is permissive by default: a field that isn't a number
// reads as 0, and trailing junk after the digits of a field is
// ignored.  Strict() turns that into an error.
package vector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strings"
)

// SyntaxError reports a field that is not a valid number; only
// returned in strict mode.
type SyntaxError struct {
	Line  int    // 1-based line number
	Field int    // 1-based field number within the line
	Text  string // the offending field, blanks trimmed
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d field %d: invalid number %q", e.Line, e.Field, e.Text)
}

type options struct {
	strict bool
}

// Option changes how a vector file is parsed.
type Option func(*options)

// Strict makes any field that is not entirely a valid unsigned 32-bit
// literal an error, instead of reading it as 0.
func Strict() Option {
	return func(o *options) { o.strict = true }
}

// Read opens the file at path and parses it.
func Read(path string, opts ...Option) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return nil, fmt.Errorf("can't read %s: %w", path, err)
	}
	defer f.Close()
	v, err := Parse(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Parse reads vector text from r until EOF.  Lines may be of any
// length.
func Parse(r io.Reader, opts ...Option) (vals []uint32, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, rerr := br.ReadString('\n')
		if len(line) > 0 {
			var serr *SyntaxError
			vals, serr = appendLine(vals, line, o.strict)
			if serr != nil {
				serr.Line = n
				return nil, serr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	return vals, nil
}

// ParseLine returns the values on a single line of vector text.
// Comment and blank lines give nil.
func ParseLine(line string) []uint32 {
	vals, _ := appendLine(nil, line, false)
	return vals
}

// appendLine parses one line, appending its values to vals.
func appendLine(vals []uint32, line string, strict bool) ([]uint32, *SyntaxError) {
	i := skipBlanks(line, 0)
	if strings.HasPrefix(line[i:], "//") || strings.HasPrefix(line[i:], "#") {
		return vals, nil
	}
	for field := 1; ; field++ {
		i = skipBlanks(line, i)
		if atEOL(line, i) {
			return vals, nil
		}
		v, end, ok := scan(line[i:])
		if strict {
			text := strings.TrimRight(line[i:fieldEnd(line, i)], " \t")
			if !ok || end != len(text) {
				return vals, &SyntaxError{Field: field, Text: text}
			}
		}
		vals = append(vals, v)
		i = skipComma(line, i)
	}
}

// ParseUint reads a number the way C's strtoul(s, NULL, 0) does,
// truncated to 32 bits.  Leading blanks and a sign are allowed; the
// longest run of digits valid in the detected base is used and the
// rest of s is ignored.  No digits gives 0.
func ParseUint(s string) uint32 {
	v, _, _ := scan(s)
	return v
}

// scan does the work for ParseUint.  end is the index just past the
// last digit consumed.  ok is false when there were no digits, the
// number was negative, or it doesn't fit in 32 bits.
func scan(s string) (v uint32, end int, ok bool) {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	base := uint64(10)
	if i < len(s) && s[i] == '0' {
		base = 8
		if i+2 < len(s) && (s[i+1] == 'x' || s[i+1] == 'X') && digit(s[i+2]) < 16 {
			base = 16
			i += 2
		}
	}
	var n uint64
	sat := false
	start := i
	for ; i < len(s); i++ {
		d := digit(s[i])
		if d >= base {
			break
		}
		if n > (math.MaxUint64-d)/base {
			sat = true
			continue
		}
		n = n*base + d
	}
	if i == start {
		return 0, 0, false
	}
	switch {
	case sat:
		n = math.MaxUint64
	case neg:
		n = -n
	}
	return uint32(n), i, !sat && !neg && n <= math.MaxUint32
}

// digit returns the value of hex digit c, or 16 if c isn't one.
func digit(c byte) uint64 {
	switch {
	case '0' <= c && c <= '9':
		return uint64(c - '0')
	case 'a' <= c && c <= 'f':
		return uint64(c-'a') + 10
	case 'A' <= c && c <= 'F':
		return uint64(c-'A') + 10
	}
	return 16
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}

// atEOL is true at the end of s or at a newline, carriage return or
// NUL.  Anything after one of these on the same line is ignored.
func atEOL(s string, i int) bool {
	return i >= len(s) || s[i] == '\n' || s[i] == '\r' || s[i] == 0
}

func skipBlanks(s string, i int) int {
	for i < len(s) && isBlank(s[i]) {
		i++
	}
	return i
}

// skipComma returns the index just past the next comma, or of the end
// of line if there is no comma first.
func skipComma(s string, i int) int {
	for ; !atEOL(s, i); i++ {
		if s[i] == ',' {
			return i + 1
		}
	}
	return i
}

// fieldEnd returns the index of the comma or end of line that ends the
// field starting at i.
func fieldEnd(s string, i int) int {
	for ; !atEOL(s, i) && s[i] != ','; i++ {
	}
	return i
}
