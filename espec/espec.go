// Package espec parses and prints the ESpec grammar used to describe how
// plaintext content was (or will be) encoded into BLTE bytes. See spec.md
// §3 for the grammar and §8 for the round-trip properties this package
// must satisfy.
package espec

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the outermost form of a Spec.
type Kind int

const (
	KindNone Kind = iota
	KindZLib
	KindEncrypted
	KindBlockTable
	KindBCPack
	KindGDeflate
)

// ZLibVariant names the optional zlib form ("mpq", "zlib", "lz4hc").
type ZLibVariant string

const (
	VariantNone  ZLibVariant = ""
	VariantMPQ   ZLibVariant = "mpq"
	VariantZLib  ZLibVariant = "zlib"
	VariantLZ4HC ZLibVariant = "lz4hc"
)

// Chunk is one element of a block table ESpec:
// "<size>[K|M][*count]=<inner>", where either the size or the leading '*'
// (or both) may be present, per the grammar observed in real ESpec strings.
type Chunk struct {
	HasSize bool
	Size    int64 // bytes, already scaled from K/M

	// Star marks a literal '*' token in the chunk header. A bare Star with
	// no HasSize and no HasCount ("*=inner") is the "absorb the remainder"
	// chunk; at most one such chunk is permitted per block table. A Star
	// following an explicit size ("256K*=inner") is a distinct, separately
	// printable form from "256K=inner" even though both carry no count.
	Star     bool
	HasCount bool
	Count    int64

	Inner *Spec
}

// isVariable reports whether this is the grammar's "absorb the remainder"
// chunk: a bare '*' with no size and no count.
func (c Chunk) isVariable() bool {
	return c.Star && !c.HasSize && !c.HasCount
}

// Spec is a parsed ESpec AST node.
type Spec struct {
	Kind Kind

	// ZLib
	HasLevel  bool
	Level     int // 1..9
	HasWindow bool
	Window    int // 8..15
	Variant   ZLibVariant

	// Encrypted
	KeyHex string // 16 hex chars
	IVHex  string // 2..16 hex chars
	Inner  *Spec

	// BlockTable
	Chunks []Chunk
	// Braced marks a "b:{...}" spec; unset means "b:<inner>" shorthand.
	Braced bool

	// BCPack / GDeflate
	HasN bool
	N    int // BCPack 1..7, GDeflate level 1..12
}

// Parse parses s into a Spec, returning an error for anything this package
// does not recognize as valid ESpec grammar.
func Parse(s string) (*Spec, error) {
	if s == "" {
		return nil, &ParseError{Input: s, Pos: 0, Msg: "empty input"}
	}
	p := &parser{s: s}
	spec, err := p.parseSpec()
	if err != nil {
		return nil, &ParseError{Input: s, Pos: p.pos, Msg: err.Error()}
	}
	if p.pos != len(p.s) {
		return nil, &ParseError{Input: s, Pos: p.pos, Msg: fmt.Sprintf("trailing input %q", p.s[p.pos:])}
	}
	return spec, nil
}

// String renders spec back into ESpec grammar in one fixed spelling: a
// block size that is a whole number of MiB or KiB prints with an M or K
// suffix, a braced zlib spec holding only a level prints as "z:N", and zlib
// options print in level, variant, window order. Parse(s).String() == s
// holds for strings already spelled that way; any other accepted spelling
// comes back in that form (e.g. "b:{1024=n}" prints as "b:{1K=n}").
func (sp *Spec) String() string {
	var b strings.Builder
	sp.write(&b)
	return b.String()
}

func (sp *Spec) write(b *strings.Builder) {
	switch sp.Kind {
	case KindNone:
		b.WriteByte('n')
	case KindZLib:
		sp.writeZLib(b)
	case KindEncrypted:
		b.WriteString("e:{")
		b.WriteString(sp.KeyHex)
		b.WriteByte(',')
		b.WriteString(sp.IVHex)
		b.WriteByte(',')
		sp.Inner.write(b)
		b.WriteByte('}')
	case KindBlockTable:
		sp.writeBlockTable(b)
	case KindBCPack:
		b.WriteByte('c')
		if sp.HasN {
			fmt.Fprintf(b, ":{%d}", sp.N)
		}
	case KindGDeflate:
		b.WriteByte('g')
		if sp.HasN {
			fmt.Fprintf(b, ":{%d}", sp.N)
		}
	}
}

func (sp *Spec) writeZLib(b *strings.Builder) {
	b.WriteByte('z')
	switch {
	case !sp.HasLevel && !sp.HasWindow && sp.Variant == VariantNone:
	case sp.HasLevel && !sp.HasWindow && sp.Variant == VariantNone:
		fmt.Fprintf(b, ":%d", sp.Level)
	case sp.Variant != VariantNone && !sp.HasWindow:
		fmt.Fprintf(b, ":{%d,%s}", sp.Level, sp.Variant)
	case sp.Variant == VariantNone:
		fmt.Fprintf(b, ":{%d,%d}", sp.Level, sp.Window)
	default:
		fmt.Fprintf(b, ":{%d,%s,%d}", sp.Level, sp.Variant, sp.Window)
	}
}

func (sp *Spec) writeBlockTable(b *strings.Builder) {
	b.WriteString("b:")
	if !sp.Braced {
		sp.Chunks[0].Inner.write(b)
		return
	}
	b.WriteByte('{')
	for i, c := range sp.Chunks {
		if i > 0 {
			b.WriteByte(',')
		}
		writeChunk(b, c)
	}
	b.WriteByte('}')
}

func writeChunk(b *strings.Builder, c Chunk) {
	if c.HasSize {
		writeSize(b, c.Size)
	}
	if c.Star {
		b.WriteByte('*')
		if c.HasCount {
			fmt.Fprintf(b, "%d", c.Count)
		}
	}
	b.WriteByte('=')
	c.Inner.write(b)
}

func writeSize(b *strings.Builder, size int64) {
	switch {
	case size != 0 && size%(1024*1024) == 0:
		fmt.Fprintf(b, "%dM", size/(1024*1024))
	case size != 0 && size%1024 == 0:
		fmt.Fprintf(b, "%dK", size/1024)
	default:
		fmt.Fprintf(b, "%d", size)
	}
}

// parser is a small recursive-descent parser over the ESpec grammar.
type parser struct {
	s   string
	pos int
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) parseSpec() (*Spec, error) {
	if p.pos >= len(p.s) {
		return nil, fmt.Errorf("espec: unexpected end of input")
	}
	switch p.peek() {
	case 'n':
		p.pos++
		return &Spec{Kind: KindNone}, nil
	case 'z':
		return p.parseZLib()
	case 'e':
		return p.parseEncrypted()
	case 'b':
		return p.parseBlockTable()
	case 'c':
		return p.parseSmallN(KindBCPack, 1, 7)
	case 'g':
		return p.parseSmallN(KindGDeflate, 1, 12)
	default:
		return nil, fmt.Errorf("espec: unexpected character %q at %d", p.peek(), p.pos)
	}
}

func (p *parser) consume(b byte) error {
	if p.peek() != b {
		return fmt.Errorf("espec: expected %q at %d, got %q", b, p.pos, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) parseInt() (int64, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("espec: expected integer at %d", start)
	}
	return strconv.ParseInt(p.s[start:p.pos], 10, 64)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (p *parser) parseZLib() (*Spec, error) {
	p.pos++ // 'z'
	sp := &Spec{Kind: KindZLib}
	if p.peek() != ':' {
		return sp, nil
	}
	p.pos++
	braced := p.peek() == '{'
	if braced {
		p.pos++
	}
	if isDigit(p.peek()) {
		level, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		sp.HasLevel = true
		sp.Level = int(level)
		if err := validateLevel(sp.Level); err != nil {
			return nil, err
		}
	} else if !braced {
		return nil, fmt.Errorf("espec: expected zlib level at %d", p.pos)
	}
	if braced {
		for p.peek() == ',' {
			p.pos++
			if isDigit(p.peek()) {
				w, err := p.parseInt()
				if err != nil {
					return nil, err
				}
				sp.HasWindow = true
				sp.Window = int(w)
				if sp.Window < 8 || sp.Window > 15 {
					return nil, fmt.Errorf("espec: zlib window %d out of range 8..15", sp.Window)
				}
			} else {
				v, err := p.parseIdent()
				if err != nil {
					return nil, err
				}
				sp.Variant = ZLibVariant(v)
				if !validVariant(sp.Variant) {
					return nil, fmt.Errorf("espec: unknown zlib variant %q", v)
				}
			}
		}
		if err := p.consume('}'); err != nil {
			return nil, err
		}
	}
	return sp, nil
}

func (p *parser) parseIdent() (string, error) {
	start := p.pos
	for p.pos < len(p.s) && ((p.s[p.pos] >= 'a' && p.s[p.pos] <= 'z') || isDigit(p.s[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("espec: expected identifier at %d", start)
	}
	return p.s[start:p.pos], nil
}

func validateLevel(l int) error {
	if l < 1 || l > 9 {
		return fmt.Errorf("espec: zlib level %d out of range 1..9", l)
	}
	return nil
}

func validVariant(v ZLibVariant) bool {
	switch v {
	case VariantMPQ, VariantZLib, VariantLZ4HC:
		return true
	default:
		return false
	}
}

func (p *parser) parseHex(minLen, maxLen int) (string, error) {
	start := p.pos
	for p.pos < len(p.s) && isHex(p.s[p.pos]) {
		p.pos++
	}
	h := p.s[start:p.pos]
	if len(h) < minLen || len(h) > maxLen || len(h)%2 != 0 {
		return "", fmt.Errorf("espec: hex field length %d out of range %d..%d", len(h), minLen, maxLen)
	}
	return h, nil
}

func isHex(b byte) bool {
	return isDigit(b) || (b >= 'A' && b <= 'F') || (b >= 'a' && b <= 'f')
}

func (p *parser) parseEncrypted() (*Spec, error) {
	p.pos++ // 'e'
	if err := p.consume(':'); err != nil {
		return nil, err
	}
	if err := p.consume('{'); err != nil {
		return nil, err
	}
	key, err := p.parseHex(16, 16)
	if err != nil {
		return nil, err
	}
	if err := p.consume(','); err != nil {
		return nil, err
	}
	iv, err := p.parseHex(2, 16)
	if err != nil {
		return nil, err
	}
	if err := p.consume(','); err != nil {
		return nil, err
	}
	inner, err := p.parseSpec()
	if err != nil {
		return nil, err
	}
	if err := p.consume('}'); err != nil {
		return nil, err
	}
	return &Spec{Kind: KindEncrypted, KeyHex: key, IVHex: iv, Inner: inner}, nil
}

func (p *parser) parseBlockTable() (*Spec, error) {
	p.pos++ // 'b'
	if err := p.consume(':'); err != nil {
		return nil, err
	}
	if p.peek() != '{' {
		inner, err := p.parseSpec()
		if err != nil {
			return nil, err
		}
		return &Spec{Kind: KindBlockTable, Braced: false, Chunks: []Chunk{{Inner: inner}}}, nil
	}
	p.pos++ // '{'
	var chunks []Chunk
	sawVariable := false
	for {
		c, err := p.parseChunk()
		if err != nil {
			return nil, err
		}
		if c.isVariable() {
			if sawVariable {
				return nil, fmt.Errorf("espec: multiple variable-size block-table chunks")
			}
			sawVariable = true
		}
		chunks = append(chunks, c)
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.consume('}'); err != nil {
		return nil, err
	}
	return &Spec{Kind: KindBlockTable, Braced: true, Chunks: chunks}, nil
}

func (p *parser) parseChunk() (Chunk, error) {
	var c Chunk
	if p.peek() == '*' {
		p.pos++
		c.Star = true
		if isDigit(p.peek()) {
			n, err := p.parseInt()
			if err != nil {
				return Chunk{}, err
			}
			c.HasCount = true
			c.Count = n
		}
	} else {
		size, err := p.parseInt()
		if err != nil {
			return Chunk{}, err
		}
		switch p.peek() {
		case 'K':
			p.pos++
			size *= 1024
		case 'M':
			p.pos++
			size *= 1024 * 1024
		case 'G', 'T', 'P':
			return Chunk{}, fmt.Errorf("espec: unsupported size unit %q", p.peek())
		}
		c.HasSize = true
		c.Size = size
		if p.peek() == '*' {
			p.pos++
			c.Star = true
			if isDigit(p.peek()) {
				n, err := p.parseInt()
				if err != nil {
					return Chunk{}, err
				}
				c.HasCount = true
				c.Count = n
			}
		}
	}
	if err := p.consume('='); err != nil {
		return Chunk{}, err
	}
	inner, err := p.parseSpec()
	if err != nil {
		return Chunk{}, err
	}
	c.Inner = inner
	return c, nil
}

func (p *parser) parseSmallN(kind Kind, lo, hi int) (*Spec, error) {
	p.pos++ // 'c' or 'g'
	sp := &Spec{Kind: kind}
	if p.peek() != ':' {
		return sp, nil
	}
	p.pos++
	if err := p.consume('{'); err != nil {
		return nil, err
	}
	n, err := p.parseInt()
	if err != nil {
		return nil, err
	}
	if int(n) < lo || int(n) > hi {
		return nil, fmt.Errorf("espec: value %d out of range %d..%d", n, lo, hi)
	}
	sp.HasN = true
	sp.N = int(n)
	if err := p.consume('}'); err != nil {
		return nil, err
	}
	return sp, nil
}
