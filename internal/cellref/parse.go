package cellref

import (
	"strings"
)

// maxColLetters bounds column references to A..ZZZ.
const maxColLetters = 3

// maxRowDigits keeps row numbers comfortably inside int range.
const maxRowDigits = 7

// Parse parses an A1-notation range address into a Range.
//
// Accepted forms: "Sheet1!A1:C10", "A1:C10", "A1" (a 1x1 range),
// "'My Sheet'!B2:D4" (quoted sheet names, '' escapes a quote),
// "A:C" (whole columns), "3:9" (whole rows) and open-ended corners
// such as "A5:C" (from row 5 down). When the address carries no sheet
// qualifier, defaultSheet is used. Reversed corners are reordered so
// start <= end; that is never an error.
func Parse(text string, defaultSheet string) (Range, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Range{}, &MalformedRangeError{Input: text, Reason: "empty address"}
	}

	sheet := defaultSheet
	if s[0] == '\'' {
		name, rest, ok := unquoteSheet(s)
		if !ok {
			return Range{}, &MalformedRangeError{Input: text, Reason: "unterminated quoted sheet name"}
		}
		if name == "" {
			return Range{}, &MalformedRangeError{Input: text, Reason: "empty sheet name"}
		}
		sheet = name
		s = rest
	} else if i := strings.IndexByte(s, '!'); i >= 0 {
		if i == 0 {
			return Range{}, &MalformedRangeError{Input: text, Reason: "empty sheet name"}
		}
		sheet = s[:i]
		s = s[i+1:]
	}
	if sheet == "" {
		return Range{}, &MalformedRangeError{Input: text, Reason: "no sheet qualifier and no current sheet"}
	}

	first := s
	second := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		first = s[:i]
		second = s[i+1:]
	}
	if first == "" {
		return Range{}, &MalformedRangeError{Input: text, Reason: "missing first corner"}
	}

	a, err := parseCorner(text, first)
	if err != nil {
		return Range{}, err
	}
	b := corner{} // empty second corner: open on both axes
	if second != "" {
		b, err = parseCorner(text, second)
		if err != nil {
			return Range{}, err
		}
	}

	r := Range{Sheet: sheet}
	r.StartCol, r.EndCol = combineAxis(a.hasCol, a.col, b.hasCol, b.col)
	r.StartRow, r.EndRow = combineAxis(a.hasRow, a.row, b.hasRow, b.row)
	return r, nil
}

// corner is one side of a range address; either component may be absent
// ("A" is a column-only corner, "3" a row-only corner).
type corner struct {
	hasCol bool
	col    int
	hasRow bool
	row    int
}

func parseCorner(input, tok string) (corner, error) {
	var c corner
	i := 0
	for i < len(tok) && isLetter(tok[i]) {
		i++
	}
	if i > 0 {
		if i > maxColLetters {
			return c, &MalformedRangeError{Input: input, Reason: "column letters outside A-ZZZ"}
		}
		c.hasCol = true
		c.col = colToIndex(tok[:i])
	}
	if i < len(tok) {
		digits := tok[i:]
		if len(digits) > maxRowDigits {
			return c, &MalformedRangeError{Input: input, Reason: "row number too large"}
		}
		n := 0
		for j := 0; j < len(digits); j++ {
			d := digits[j]
			if d < '0' || d > '9' {
				return c, &MalformedRangeError{Input: input, Reason: "invalid row number"}
			}
			n = n*10 + int(d-'0')
		}
		if n == 0 {
			return c, &MalformedRangeError{Input: input, Reason: "row numbers start at 1"}
		}
		c.hasRow = true
		c.row = n - 1
	}
	if !c.hasCol && !c.hasRow {
		return c, &MalformedRangeError{Input: input, Reason: "empty corner"}
	}
	return c, nil
}

// combineAxis resolves one axis from the two corners: both bounds present
// means a closed interval (reordered), one bound means open-ended from it,
// none means the whole axis.
func combineAxis(aSet bool, a int, bSet bool, b int) (start, end int) {
	switch {
	case aSet && bSet:
		if a > b {
			a, b = b, a
		}
		return a, b
	case aSet:
		return a, Open
	case bSet:
		return b, Open
	default:
		return 0, Open
	}
}

// unquoteSheet consumes a 'quoted' sheet name plus the trailing '!'.
func unquoteSheet(s string) (name, rest string, ok bool) {
	var b strings.Builder
	i := 1
	for i < len(s) {
		j := strings.IndexByte(s[i:], '\'')
		if j < 0 {
			return "", "", false
		}
		k := i + j
		if k+1 < len(s) && s[k+1] == '\'' {
			b.WriteString(s[i : k+1])
			i = k + 2
			continue
		}
		b.WriteString(s[i:k])
		i = k + 1
		if i >= len(s) || s[i] != '!' {
			return "", "", false
		}
		return b.String(), s[i+1:], true
	}
	return "", "", false
}

// Format renders the canonical address for a range: always sheet-qualified
// and always with both corners, so round-tripping is unambiguous
// ("Sheet1!A1:A1" for a single cell). Open-bounded ranges use the open
// forms ("Sheet1!A:C", "Sheet1!3:9", "Sheet1!A5:C").
func Format(r Range) string {
	var b strings.Builder
	writeSheet(&b, r.Sheet)
	b.WriteByte('!')

	colsBounded := r.EndCol != Open
	rowsBounded := r.EndRow != Open
	switch {
	case colsBounded && rowsBounded:
		writeCell(&b, r.StartCol, r.StartRow)
		b.WriteByte(':')
		writeCell(&b, r.EndCol, r.EndRow)
	case colsBounded && !rowsBounded:
		if r.StartRow == 0 {
			b.WriteString(indexToCol(r.StartCol))
			b.WriteByte(':')
			b.WriteString(indexToCol(r.EndCol))
		} else {
			writeCell(&b, r.StartCol, r.StartRow)
			b.WriteByte(':')
			b.WriteString(indexToCol(r.EndCol))
		}
	case !colsBounded && rowsBounded:
		if r.StartCol == 0 {
			writeRow(&b, r.StartRow)
			b.WriteByte(':')
			writeRow(&b, r.EndRow)
		} else {
			writeCell(&b, r.StartCol, r.StartRow)
			b.WriteByte(':')
			writeRow(&b, r.EndRow)
		}
	default:
		// Open on both axes: open-ended second corner.
		writeCell(&b, r.StartCol, r.StartRow)
		b.WriteByte(':')
	}
	return b.String()
}

// String implements fmt.Stringer using the canonical format.
func (r Range) String() string {
	return Format(r)
}

func writeSheet(b *strings.Builder, sheet string) {
	if !sheetNeedsQuoting(sheet) {
		b.WriteString(sheet)
		return
	}
	b.WriteByte('\'')
	b.WriteString(strings.ReplaceAll(sheet, "'", "''"))
	b.WriteByte('\'')
}

func sheetNeedsQuoting(sheet string) bool {
	for i := 0; i < len(sheet); i++ {
		c := sheet[i]
		if isLetter(c) || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return true
	}
	return false
}

func writeCell(b *strings.Builder, col, row int) {
	b.WriteString(indexToCol(col))
	writeRow(b, row)
}

func writeRow(b *strings.Builder, row int) {
	var buf [maxRowDigits + 3]byte
	n := row + 1
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	b.Write(buf[i:])
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

// colToIndex converts bijective base-26 column letters to a zero-based
// index (A=0, Z=25, AA=26).
func colToIndex(letters string) int {
	n := 0
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		if c >= 'a' {
			c -= 'a' - 'A'
		}
		n = n*26 + int(c-'A') + 1
	}
	return n - 1
}

// indexToCol is the inverse of colToIndex.
func indexToCol(index int) string {
	var buf [maxColLetters + 4]byte
	i := len(buf)
	n := index + 1
	for n > 0 {
		i--
		n--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}
