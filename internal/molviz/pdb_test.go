package molviz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waterPDB = `COMPND    WATER
HETATM    1 O1   HOH A   1       0.000   0.000   0.117  1.00  0.00           O
HETATM    2 H1   HOH A   1       0.000   0.757  -0.469  1.00  0.00           H
HETATM    3 H2   HOH A   1       0.000  -0.757  -0.469  1.00  0.00           H
CONECT    1    2    3
CONECT    2    1
CONECT    3    1
END
`

func TestParsePDB_Water(t *testing.T) {
	mol, err := ParsePDB(context.Background(), "water.pdb", strings.NewReader(waterPDB))
	require.NoError(t, err)

	require.Len(t, mol.Atoms, 3)
	assert.Equal(t, "water.pdb", mol.Name)
	assert.Equal(t, "O", mol.Atoms[0].Element)
	assert.Equal(t, "H", mol.Atoms[1].Element)
	assert.Equal(t, Vec3{0, 0.757, -0.469}, mol.Atoms[1].Position)
	assert.Equal(t, RGB8{255, 13, 13}, mol.Atoms[0].Display)
	assert.InDelta(t, 13.0/255, mol.Atoms[0].Color.G, 1e-9)
	assert.Equal(t, 1.0, mol.Atoms[1].Color.R)

	// 1-2 and 1-3 are each listed twice
	require.Len(t, mol.Bonds, 2)
	assert.Equal(t, mol.Atoms[0].Position, mol.Bonds[0].Start)
	assert.Equal(t, mol.Atoms[1].Position, mol.Bonds[0].End)
	assert.Equal(t, mol.Atoms[2].Position, mol.Bonds[1].End)
}

func TestParsePDB_BundledCaffeine(t *testing.T) {
	lib, err := NewPresetLibrary(EmbeddedPresets(), "", nil)
	require.NoError(t, err)

	path, err := lib.Catalogue().Resolve("caffeine")
	require.NoError(t, err)
	mol, err := NewPDBDecoder(EmbeddedPresets()).Decode(context.Background(), Reference{Kind: RefPath, Name: "caffeine", Path: path})
	require.NoError(t, err)

	assert.Len(t, mol.Atoms, 24)
	assert.Len(t, mol.Bonds, 25)

	counts := map[string]int{}
	for _, a := range mol.Atoms {
		counts[a.Element]++
	}
	assert.Equal(t, map[string]int{"O": 2, "N": 4, "C": 8, "H": 10}, counts)
}

func TestParsePDB_ElementFallsBackToAtomName(t *testing.T) {
	text := "ATOM      1 CL   LIG A   1       1.000   2.000   3.000  1.00  0.00\n" +
		"ATOM      2  N   LIG A   1       1.500   2.000   3.000  1.00  0.00\n"
	mol, err := ParsePDB(context.Background(), "x.pdb", strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, mol.Atoms, 2)
	assert.Equal(t, "Cl", mol.Atoms[0].Element)
	assert.Equal(t, RGB8{31, 240, 31}, mol.Atoms[0].Display)
	assert.Equal(t, "N", mol.Atoms[1].Element)
}

func TestParsePDB_UnknownElementGetsFallbackColor(t *testing.T) {
	text := "HETATM    1 XX   UNK A   1       0.000   0.000   0.000  1.00  0.00          Xx\n"
	mol, err := ParsePDB(context.Background(), "x.pdb", strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, "Xx", mol.Atoms[0].Element)
	assert.Equal(t, unknownElementColor, mol.Atoms[0].Display)
}

func TestParsePDB_BondToMissingSerialIsSkipped(t *testing.T) {
	text := "HETATM    1 O1   HOH A   1       0.000   0.000   0.117  1.00  0.00           O\n" +
		"HETATM    2 H1   HOH A   1       0.000   0.757  -0.469  1.00  0.00           H\n" +
		"CONECT    1    2   99\n"
	mol, err := ParsePDB(context.Background(), "x.pdb", strings.NewReader(text))
	require.NoError(t, err)
	assert.Len(t, mol.Bonds, 1)
}

func TestParsePDB_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no atoms", "COMPND    NOTHING\nEND\n"},
		{"bad coordinate", "HETATM    1 O1   HOH A   1       0.0x0   0.000   0.117  1.00  0.00           O\n"},
		{"short line", "HETATM    1 O1\n"},
		{"no element", "HETATM    1 12   HOH A   1       0.000   0.000   0.117  1.00  0.00\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePDB(context.Background(), "bad.pdb", strings.NewReader(tt.text))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode), "got %v", err)
		})
	}
}

func TestParsePDB_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParsePDB(ctx, "water.pdb", strings.NewReader(waterPDB))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPDBDecoder_MissingPath(t *testing.T) {
	_, err := NewPDBDecoder(EmbeddedPresets()).Decode(context.Background(), Reference{Kind: RefPath, Path: "PDB/none.pdb"})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = NewPDBDecoder(nil).Decode(context.Background(), Reference{Kind: RefPath, Path: "PDB/caffeine.pdb"})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestMolecule_Recentered(t *testing.T) {
	mol, err := ParsePDB(context.Background(), "water.pdb", strings.NewReader(waterPDB))
	require.NoError(t, err)

	c := mol.Recentered()
	before, after := mol.Center(), c.Center()
	assert.InDeltaSlice(t, []float64{0, 0, -0.176}, before[:], 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, after[:], 1e-9)
	assert.InDelta(t, 0.293, c.Atoms[0].Position.Z(), 1e-9)
	assert.InDelta(t, 0.293, c.Bonds[0].Start.Z(), 1e-9)
	// input untouched
	assert.Equal(t, 0.117, mol.Atoms[0].Position.Z())
}
