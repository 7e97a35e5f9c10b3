package main

import (
	"bytes"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daniacca/molviz/internal/molviz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waterPDB = `HETATM    1 O1   HOH A   1       0.000   0.000   0.117  1.00  0.00           O
HETATM    2 H1   HOH A   1       0.000   0.757  -0.469  1.00  0.00           H
HETATM    3 H2   HOH A   1       0.000  -0.757  -0.469  1.00  0.00           H
CONECT    1    2    3
END
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRender_PresetToPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "caffeine.png")
	_, err := execute(t, "--preset", "caffeine", "--style", "physical", "--width", "200", "--height", "100", "-o", out)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestRender_FileToStdout(t *testing.T) {
	in := filepath.Join(t.TempDir(), "Water.PDB")
	require.NoError(t, os.WriteFile(in, []byte(waterPDB), 0o644))

	stdout, err := execute(t, in, "--width", "64", "--height", "64", "--no-labels", "-o", "-")
	require.NoError(t, err)
	img, err := png.Decode(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestRender_GIF(t *testing.T) {
	out := filepath.Join(t.TempDir(), "spin.gif")
	_, err := execute(t, "--preset", "water", "--gif-frames", "4", "--gif-delay", "7", "--width", "48", "--height", "48", "-o", out)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 4)
	assert.Equal(t, 7, anim.Delay[0])
}

func TestRender_Errors(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "molecule.txt")
	require.NoError(t, os.WriteFile(txt, []byte(waterPDB), 0o644))

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"wrong extension", []string{txt, "-o", filepath.Join(dir, "a.png")}, molviz.ErrInvalidExtension},
		{"unknown style", []string{"--style", "toon", "-o", filepath.Join(dir, "b.png")}, molviz.ErrUnknownStyle},
		{"unknown preset", []string{"--preset", "benzene", "-o", filepath.Join(dir, "c.png")}, molviz.ErrUnknownPreset},
		{"bad viewport", []string{"--width", "0", "-o", filepath.Join(dir, "d.png")}, molviz.ErrInvalidViewport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := execute(t, "-o", filepath.Join(dir, "noext"))
	assert.ErrorContains(t, err, "needs a file extension")

	_, err = execute(t, filepath.Join(dir, "missing.pdb"), "-o", filepath.Join(dir, "e.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = execute(t, "a.pdb", "b.pdb")
	assert.Error(t, err)
}

func TestStylesCommand(t *testing.T) {
	out, err := execute(t, "styles")
	require.NoError(t, err)
	assert.Equal(t, "spheres\nwireframe\npoints\ndepth\nnormal\nphysical\n", out)
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "caffeine\tcaffeine.pdb")
	assert.Contains(t, out, "water\t")
}
