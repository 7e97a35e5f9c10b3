package molviz

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"unicode"
)

// RefKind tells a decoder where the molecule text lives.
type RefKind int

const (
	RefPath   RefKind = iota // a path inside the decoder's filesystem
	RefInline                // the text is carried in the reference itself
)

// Reference is a loadable molecule: a bundled path or an in-memory payload.
type Reference struct {
	Kind RefKind
	Name string
	Path string
	Text string
}

// Decoder turns a Reference into a Molecule.
type Decoder interface {
	Decode(ctx context.Context, ref Reference) (*Molecule, error)
}

// PDBDecoder reads PDB text, resolving RefPath references against fsys.
type PDBDecoder struct {
	fsys fs.FS
}

// NewPDBDecoder creates a decoder. fsys may be nil when only inline
// references will be decoded.
func NewPDBDecoder(fsys fs.FS) *PDBDecoder {
	return &PDBDecoder{fsys: fsys}
}

// Decode implements Decoder.
func (d *PDBDecoder) Decode(ctx context.Context, ref Reference) (*Molecule, error) {
	switch ref.Kind {
	case RefInline:
		return ParsePDB(ctx, ref.Name, strings.NewReader(ref.Text))
	case RefPath:
		if d.fsys == nil {
			return nil, fmt.Errorf("%w: no filesystem to resolve %s", ErrDecode, ref.Path)
		}
		f, err := d.fsys.Open(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		defer f.Close()
		return ParsePDB(ctx, ref.Name, f)
	default:
		return nil, fmt.Errorf("%w: unknown reference kind %d", ErrDecode, ref.Kind)
	}
}

type pdbParser struct {
	mol     *Molecule
	line    string
	lineNo  int
	serials map[int]int
	conect  [][2]int
}

// ParsePDB decodes ATOM/HETATM and CONECT records. Coordinates are in
// columns 31-54, the element in 77-78 (falling back to the atom name in
// 13-14). Each bond is kept once regardless of how often CONECT lists it.
func ParsePDB(ctx context.Context, name string, r io.Reader) (*Molecule, error) {
	p := &pdbParser{
		mol:     &Molecule{Name: name},
		serials: make(map[int]int),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.lineNo++
		p.line = scanner.Text()
		if err := p.parseLine(); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if len(p.mol.Atoms) == 0 {
		return nil, fmt.Errorf("%w: %q does not contain any ATOM or HETATM record", ErrDecode, name)
	}

	p.resolveBonds()
	return p.mol, nil
}

func (p *pdbParser) parseLine() error {
	switch p.cols(1, 6) {
	case "ATOM", "HETATM":
		return p.parseAtom()
	case "CONECT":
		p.parseConect()
	}
	return nil
}

func (p *pdbParser) parseAtom() error {
	var pos Vec3
	for i, span := range [3][2]int{{31, 38}, {39, 46}, {47, 54}} {
		v, err := p.atof(span[0], span[1])
		if err != nil {
			return fmt.Errorf("%w: line %d: bad coordinate: %v", ErrDecode, p.lineNo, err)
		}
		pos[i] = v
	}

	symbol := elementSymbol(p.cols(77, 78))
	if symbol == "" {
		symbol = elementSymbol(p.cols(13, 14))
	}
	if symbol == "" {
		return fmt.Errorf("%w: line %d: missing element", ErrDecode, p.lineNo)
	}

	serial, err := p.atoi(7, 11)
	if err != nil {
		serial = len(p.mol.Atoms) + 1
	}

	display := elementColor(symbol)
	p.serials[serial] = len(p.mol.Atoms)
	p.mol.Atoms = append(p.mol.Atoms, Atom{
		Serial:   serial,
		Position: pos,
		Color:    display.Float(),
		Element:  capitalize(symbol),
		Display:  display,
	})
	return nil
}

func (p *pdbParser) parseConect() {
	from, err := p.atoi(7, 11)
	if err != nil {
		return
	}
	for c := 12; c <= 27; c += 5 {
		to, err := p.atoi(c, c+4)
		if err != nil || to == 0 {
			continue
		}
		p.conect = append(p.conect, [2]int{from, to})
	}
}

func (p *pdbParser) resolveBonds() {
	seen := make(map[[2]int]struct{}, len(p.conect))
	for _, pair := range p.conect {
		key := pair
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		si, ok1 := p.serials[pair[0]]
		ei, ok2 := p.serials[pair[1]]
		if !ok1 || !ok2 {
			continue
		}
		p.mol.Bonds = append(p.mol.Bonds, Bond{
			Start: p.mol.Atoms[si].Position,
			End:   p.mol.Atoms[ei].Position,
		})
	}
}

func (p *pdbParser) atoi(start, end int) (int, error) {
	return strconv.Atoi(p.cols(start, end))
}

func (p *pdbParser) atof(start, end int) (float64, error) {
	return strconv.ParseFloat(p.cols(start, end), 64)
}

// cols returns the trimmed text between 1-based inclusive columns.
func (p *pdbParser) cols(start, end int) string {
	rs, re := start-1, end
	if rs >= len(p.line) || rs < 0 {
		return ""
	}
	if re > len(p.line) {
		re = len(p.line)
	}
	if re < rs {
		return ""
	}
	return strings.TrimSpace(p.line[rs:re])
}

// elementSymbol keeps the letters of a raw element field, lower-cased.
func elementSymbol(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func capitalize(symbol string) string {
	if symbol == "" {
		return symbol
	}
	return strings.ToUpper(symbol[:1]) + symbol[1:]
}
