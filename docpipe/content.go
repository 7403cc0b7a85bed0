package docpipe

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Text layout decisions taken from positioning operators.
const (
	// TJ adjustments below this (thousandths of text space) read as a space.
	tjSpaceThreshold = -250
)

// pageText renders a content stream as text lines. Vertical moves and the
// next-line operators end a line; horizontal moves on the same line become
// a tab so column-aligned tables survive. Strings shown in a font listed in
// fonts are decoded through its ToUnicode map.
func pageText(data []byte, fonts map[string]*fontDecoder) string {
	w := &textWriter{}
	lx := &lexer{data: data}
	var (
		operands []token
		font     *fontDecoder
	)
	show := func(b []byte) string {
		if font != nil {
			return font.decode(b)
		}
		return decodeText(b)
	}

	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}
		switch tok.text {
		case "Tf":
			font = nil
			for _, op := range operands {
				if op.kind == tokName {
					font = fonts[op.text]
				}
			}
		case "Td", "TD":
			if len(operands) >= 2 {
				tx, ty := operands[len(operands)-2].num, operands[len(operands)-1].num
				switch {
				case ty != 0:
					w.newline()
				case tx != 0:
					w.tab()
				}
			}
		case "Tm":
			if len(operands) >= 6 {
				w.moveTo(operands[len(operands)-1].num)
			}
		case "T*":
			w.newline()
		case "Tj":
			if s := lastString(operands); s != nil {
				w.write(show(s))
			}
		case "'":
			w.newline()
			if s := lastString(operands); s != nil {
				w.write(show(s))
			}
		case "\"":
			w.newline()
			if s := lastString(operands); s != nil {
				w.write(show(s))
			}
		case "TJ":
			for _, op := range operands {
				switch op.kind {
				case tokString:
					w.write(show(op.raw))
				case tokNumber:
					if op.num < tjSpaceThreshold {
						w.write(" ")
					}
				}
			}
		case "ID":
			lx.skipInlineImage()
		}
		operands = operands[:0]
	}
	return w.String()
}

func lastString(ops []token) []byte {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].kind == tokString {
			return ops[i].raw
		}
	}
	return nil
}

type textWriter struct {
	sb      strings.Builder
	line    strings.Builder
	haveY   bool
	y       float64
	pending byte // '\t' queued until more text arrives
}

func (w *textWriter) write(s string) {
	if s == "" {
		return
	}
	if w.pending != 0 && w.line.Len() > 0 {
		w.line.WriteByte(w.pending)
	}
	w.pending = 0
	w.line.WriteString(s)
}

func (w *textWriter) tab() {
	if w.line.Len() > 0 {
		w.pending = '\t'
	}
}

func (w *textWriter) newline() {
	w.pending = 0
	if w.line.Len() == 0 {
		return
	}
	w.sb.WriteString(w.line.String())
	w.sb.WriteByte('\n')
	w.line.Reset()
}

// moveTo handles an absolute text matrix: a new baseline is a new line,
// the same baseline is a cell gap.
func (w *textWriter) moveTo(y float64) {
	if w.haveY && y != w.y {
		w.newline()
	} else {
		w.tab()
	}
	w.haveY, w.y = true, y
}

func (w *textWriter) String() string {
	w.newline()
	return strings.TrimRight(w.sb.String(), "\n")
}

// decodeText converts PDF string bytes to UTF-8. UTF-16BE with a byte order
// mark is decoded; valid UTF-8 passes through; anything else is read as
// Latin-1.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	if utf8.Valid(b) {
		return string(b)
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// --- lexer ---

type tokenKind int

const (
	tokOperator tokenKind = iota
	tokNumber
	tokString
	tokName
	tokOther
)

type token struct {
	kind tokenKind
	text string
	raw  []byte
	num  float64
}

type lexer struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isPDFSpace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			l.pos++
			return token{kind: tokString, raw: l.literal()}, true
		case c == '<':
			if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
				l.pos += 2
				return token{kind: tokOther, text: "<<"}, true
			}
			l.pos++
			return token{kind: tokString, raw: l.hex()}, true
		case c == '>':
			l.pos++
			if l.pos < len(l.data) && l.data[l.pos] == '>' {
				l.pos++
			}
			return token{kind: tokOther, text: ">>"}, true
		case c == '[' || c == ']' || c == '{' || c == '}' || c == ')':
			l.pos++
			return token{kind: tokOther, text: string(c)}, true
		case c == '/':
			l.pos++
			return token{kind: tokName, text: l.word()}, true
		default:
			w := l.word()
			if w == "" {
				l.pos++
				continue
			}
			if n, err := strconv.ParseFloat(w, 64); err == nil {
				return token{kind: tokNumber, text: w, num: n}, true
			}
			return token{kind: tokOperator, text: w}, true
		}
	}
	return token{}, false
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isPDFSpace(l.data[l.pos]) && !isPDFDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// literal reads a (string) body after the opening parenthesis, honouring
// nesting and escapes.
func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
						val = val*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

// hex reads a <hex string> body after the opening bracket.
func (l *lexer) hex() []byte {
	var out []byte
	var hi byte
	half := false
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			break
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage advances past inline image data to the EI operator.
func (l *lexer) skipInlineImage() {
	for l.pos+2 < len(l.data) {
		if isPDFSpace(l.data[l.pos]) && l.data[l.pos+1] == 'E' && l.data[l.pos+2] == 'I' &&
			(l.pos+3 == len(l.data) || isPDFSpace(l.data[l.pos+3])) {
			l.pos += 3
			return
		}
		l.pos++
	}
	l.pos = len(l.data)
}
