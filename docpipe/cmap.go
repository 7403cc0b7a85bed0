package docpipe

import (
	"bytes"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// bfrange spans wider than this are clipped.
const maxCMapSpan = 0xffff

type codespace struct {
	lo, hi []byte
}

// fontDecoder maps a font's character codes to text through its ToUnicode
// CMap. Composite fonts use two-byte codes unless the CMap declares
// otherwise.
type fontDecoder struct {
	ranges []codespace
	width  int
	glyphs map[string]string
}

// parseCMap reads the codespace and bfchar/bfrange sections of a ToUnicode
// CMap. It returns nil when the CMap maps nothing.
func parseCMap(data []byte, width int) *fontDecoder {
	d := &fontDecoder{width: width, glyphs: make(map[string]string)}
	lx := &lexer{data: data}
	var operands []token

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
		case "endcodespacerange":
			s := stringsOf(operands)
			for i := 0; i+1 < len(s); i += 2 {
				if len(s[i]) > 0 && len(s[i]) == len(s[i+1]) {
					d.ranges = append(d.ranges, codespace{lo: s[i], hi: s[i+1]})
				}
			}
		case "endbfchar":
			s := stringsOf(operands)
			for i := 0; i+1 < len(s); i += 2 {
				d.glyphs[string(s[i])] = utf16Text(s[i+1])
			}
		case "endbfrange":
			d.bfrange(operands)
		}
		operands = operands[:0]
	}
	if len(d.glyphs) == 0 {
		return nil
	}
	return d
}

// bfrange handles "<lo> <hi> <dst>" and "<lo> <hi> [<dst> ...]" entries.
func (d *fontDecoder) bfrange(ops []token) {
	for i := 0; i+2 < len(ops); {
		lo, hi := ops[i], ops[i+1]
		if lo.kind != tokString || hi.kind != tokString || len(lo.raw) != len(hi.raw) || len(lo.raw) == 0 {
			i++
			continue
		}
		first, last := codeValue(lo.raw), codeValue(hi.raw)
		if last < first {
			last = first
		}
		if last-first > maxCMapSpan {
			last = first + maxCMapSpan
		}

		dst := ops[i+2]
		switch {
		case dst.kind == tokString:
			units := utf16Units(dst.raw)
			for off := uint32(0); off <= last-first; off++ {
				if len(units) == 0 {
					break
				}
				u := append([]uint16(nil), units...)
				u[len(u)-1] += uint16(off)
				d.glyphs[string(codeBytes(first+off, len(lo.raw)))] = string(utf16.Decode(u))
			}
			i += 3
		case dst.kind == tokOther && dst.text == "[":
			j := i + 3
			off := uint32(0)
			for ; j < len(ops) && !(ops[j].kind == tokOther && ops[j].text == "]"); j++ {
				if ops[j].kind != tokString || off > last-first {
					continue
				}
				d.glyphs[string(codeBytes(first+off, len(lo.raw)))] = utf16Text(ops[j].raw)
				off++
			}
			i = j + 1
		default:
			i += 3
		}
	}
}

// decode converts a shown string to text. Unmapped single-byte codes fall
// back to Latin-1; unmapped multi-byte codes are dropped.
func (d *fontDecoder) decode(b []byte) string {
	var out bytes.Buffer
	for len(b) > 0 {
		n := d.codeLen(b)
		code := b[:n]
		b = b[n:]
		if s, ok := d.glyphs[string(code)]; ok {
			out.WriteString(s)
			continue
		}
		if n == 1 {
			out.WriteRune(rune(code[0]))
		}
	}
	return out.String()
}

func (d *fontDecoder) codeLen(b []byte) int {
	for _, r := range d.ranges {
		n := len(r.lo)
		if n > len(b) {
			continue
		}
		in := true
		for k := 0; k < n; k++ {
			if b[k] < r.lo[k] || b[k] > r.hi[k] {
				in = false
				break
			}
		}
		if in {
			return n
		}
	}
	if d.width > 0 && d.width <= len(b) {
		return d.width
	}
	return len(b)
}

// pageFonts collects a decoder for every font on the page that carries a
// ToUnicode CMap, keyed by resource name.
func pageFonts(ctx *model.Context, pageNr int) map[string]*fontDecoder {
	_, _, inh, err := ctx.PageDict(pageNr, false)
	if err != nil || inh == nil || inh.Resources == nil {
		return nil
	}
	o, found := inh.Resources.Find("Font")
	if !found {
		return nil
	}
	fonts, err := ctx.DereferenceDict(o)
	if err != nil || fonts == nil {
		return nil
	}

	out := make(map[string]*fontDecoder)
	for name, obj := range fonts {
		fd, err := ctx.DereferenceDict(obj)
		if err != nil || fd == nil {
			continue
		}
		tu, found := fd.Find("ToUnicode")
		if !found {
			continue
		}
		sd, _, err := ctx.DereferenceStreamDict(tu)
		if err != nil || sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			continue
		}
		width := 1
		if st := fd.Subtype(); st != nil && *st == "Type0" {
			width = 2
		}
		if dec := parseCMap(sd.Content, width); dec != nil {
			out[name] = dec
		}
	}
	return out
}

func stringsOf(ops []token) [][]byte {
	var out [][]byte
	for _, op := range ops {
		if op.kind == tokString {
			out = append(out, op.raw)
		}
	}
	return out
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func codeBytes(v uint32, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func utf16Units(b []byte) []uint16 {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return u
}

func utf16Text(b []byte) string {
	return string(utf16.Decode(utf16Units(b)))
}
