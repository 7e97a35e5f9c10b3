package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
	"github.com/daniacca/molviz/internal/raster"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	preset    string
	presetDir string
	style     string
	width     int
	height    int
	elapsed   time.Duration
	out       string
	gifFrames int
	gifStep   time.Duration
	gifDelay  int
	noLabels  bool
}

func newRootCmd() *cobra.Command {
	opts := &renderOptions{}

	root := &cobra.Command{
		Use:   "molviz-render [file.pdb]",
		Short: "Render a PDB molecule to PNG or an animated GIF",
		Long: `Renders one frame of a molecule the way the viewer shows it, or a GIF
turntable of the rotation. Without a file argument the preset given by
--preset is used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}

	f := root.Flags()
	f.StringVar(&opts.preset, "preset", "", "preset molecule name (default: first catalogue entry)")
	f.StringVar(&opts.presetDir, "preset-dir", "", "preset directory; empty uses the bundled presets")
	f.StringVar(&opts.style, "style", molviz.DefaultStyle.String(), "render style: spheres, wireframe, points, depth, normal, physical")
	f.IntVar(&opts.width, "width", 800, "image width in pixels")
	f.IntVar(&opts.height, "height", 600, "image height in pixels")
	f.DurationVar(&opts.elapsed, "elapsed", 0, "loop time of the rendered frame, e.g. 2s")
	f.StringVarP(&opts.out, "out", "o", "molecule.png", "output file, - for stdout")
	f.IntVar(&opts.gifFrames, "gif-frames", 0, "render an animated GIF with this many frames")
	f.DurationVar(&opts.gifStep, "gif-step", 100*time.Millisecond, "loop time between GIF frames")
	f.IntVar(&opts.gifDelay, "gif-delay", 5, "GIF frame delay in hundredths of a second")
	f.BoolVar(&opts.noLabels, "no-labels", false, "do not draw element labels")

	root.AddCommand(newPresetsCmd(opts), newStylesCmd())
	return root
}

func newPresetsCmd(opts *renderOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the preset molecules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := molviz.OpenPresetLibrary(opts.presetDir, "", nil)
			if err != nil {
				return err
			}
			for _, p := range lib.Catalogue().Entries() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Name, p.File)
			}
			return nil
		},
	}
}

func newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the render styles",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, s := range molviz.AllStyles() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
		},
	}
}

func runRender(ctx context.Context, opts *renderOptions, args []string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	style, err := molviz.ParseRenderStyle(opts.style)
	if err != nil {
		return err
	}
	viewport := molviz.Viewport{Width: opts.width, Height: opts.height}
	if err := viewport.Validate(); err != nil {
		return err
	}

	lib, err := molviz.OpenPresetLibrary(opts.presetDir, "", nil)
	if err != nil {
		return fmt.Errorf("loading presets: %w", err)
	}

	src, err := sourceFor(opts, args, lib.Catalogue())
	if err != nil {
		return err
	}
	ref, err := src.Resolve(lib.Catalogue())
	if err != nil {
		return err
	}
	mol, err := lib.Decode(ctx, ref)
	if err != nil {
		return err
	}
	scene, err := molviz.BuildScene(mol, style)
	if err != nil {
		return err
	}

	base := molviz.Frame{
		Elapsed:  opts.elapsed,
		Rotation: molviz.RotationAt(opts.elapsed),
		Scene:    scene,
		Camera:   molviz.DefaultCamera(viewport.Aspect()),
		Viewport: viewport,
	}

	r := raster.New()
	r.Labels = !opts.noLabels

	w, closeOut, err := openOutput(opts.out, stdout)
	if err != nil {
		return err
	}
	defer closeOut()

	if opts.gifFrames > 0 {
		frames := raster.Turntable(base, opts.gifFrames, opts.gifStep)
		return r.EncodeGIF(w, frames, opts.gifDelay)
	}
	data, err := r.EncodePNG(base)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func sourceFor(opts *renderOptions, args []string, cat *molviz.Catalogue) (molviz.MoleculeSource, error) {
	if len(args) == 1 {
		name := filepath.Base(args[0])
		if err := molviz.ValidateFileName(name); err != nil {
			return molviz.MoleculeSource{}, err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return molviz.MoleculeSource{}, err
		}
		return molviz.TextSource(name, string(data)), nil
	}
	preset := opts.preset
	if preset == "" {
		preset = cat.Default()
	}
	return molviz.PresetSource(preset), nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "-" {
		return stdout, func() {}, nil
	}
	if !strings.Contains(filepath.Base(path), ".") {
		return nil, nil, fmt.Errorf("output %q needs a file extension", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
