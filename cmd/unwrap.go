package cmd

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/smazurov/panocam/internal/unwrap"
)

// UnwrapFlags are the command line parameters of the unwrap command.
type UnwrapFlags struct {
	CenterX    float64
	CenterY    float64
	Radius     float64
	OutputSize int
	Quality    int
	ParamsFile string
}

// CreateUnwrapCmd creates the offline unwrap command.
func CreateUnwrapCmd() *cobra.Command {
	var flags UnwrapFlags

	cmd := &cobra.Command{
		Use:   "unwrap <input> <output>",
		Short: "Unwrap a fisheye image file",
		Long: `Unwraps a still fisheye image into an equirectangular strip twice as wide as it is tall. ` +
			`Unset parameters default to a centred disc with a radius of a quarter of the image width. ` +
			`The output format follows the extension: .jpg, .png, .bmp or .tiff.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rect, err := UnwrapFile(args[0], args[1], flags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d)\n", args[1], rect.Dx(), rect.Dy())
			return nil
		},
	}

	cmd.Flags().Float64Var(&flags.CenterX, "center-x", 0, "Fisheye centre X in pixels")
	cmd.Flags().Float64Var(&flags.CenterY, "center-y", 0, "Fisheye centre Y in pixels")
	cmd.Flags().Float64Var(&flags.Radius, "radius", 0, "Fisheye radius in pixels")
	cmd.Flags().IntVar(&flags.OutputSize, "output-size", 0, "Output height, width is twice this")
	cmd.Flags().IntVar(&flags.Quality, "quality", 90, "JPEG quality")
	cmd.Flags().StringVar(&flags.ParamsFile, "params", "", "Calibration file to read parameters from")

	return cmd
}

// UnwrapFile reads a fisheye image, unwraps it and writes the result.
func UnwrapFile(input, output string, flags UnwrapFlags) (image.Rectangle, error) {
	encode, err := encoderFor(output, flags.Quality)
	if err != nil {
		return image.Rectangle{}, err
	}

	in, err := os.Open(input)
	if err != nil {
		return image.Rectangle{}, err
	}
	defer in.Close()
	src, _, err := image.Decode(in)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("decode %s: %w", input, err)
	}

	params, err := resolveParams(src.Bounds(), flags)
	if err != nil {
		return image.Rectangle{}, err
	}
	t, err := unwrap.New(params)
	if err != nil {
		return image.Rectangle{}, err
	}
	dst := t.Image(src)

	out, err := os.Create(output)
	if err != nil {
		return image.Rectangle{}, err
	}
	if err := encode(out, dst); err != nil {
		out.Close()
		return image.Rectangle{}, fmt.Errorf("encode %s: %w", output, err)
	}
	return dst.Bounds(), out.Close()
}

func resolveParams(bounds image.Rectangle, flags UnwrapFlags) (unwrap.Params, error) {
	p := unwrap.DefaultParams(bounds.Dx(), bounds.Dy())
	if flags.ParamsFile != "" {
		loaded, err := unwrap.LoadParams(flags.ParamsFile)
		if err != nil {
			return unwrap.Params{}, err
		}
		p = loaded
	}
	if flags.CenterX != 0 {
		p.Center.X = flags.CenterX
	}
	if flags.CenterY != 0 {
		p.Center.Y = flags.CenterY
	}
	if flags.Radius != 0 {
		p.Radius = flags.Radius
	}
	if flags.OutputSize != 0 {
		p.OutputSize = flags.OutputSize
	}
	return p, nil
}

type encodeFunc func(f *os.File, img image.Image) error

func encoderFor(path string, quality int) (encodeFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return func(f *os.File, img image.Image) error {
			return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
		}, nil
	case ".png":
		return func(f *os.File, img image.Image) error { return png.Encode(f, img) }, nil
	case ".bmp":
		return func(f *os.File, img image.Image) error { return bmp.Encode(f, img) }, nil
	case ".tif", ".tiff":
		return func(f *os.File, img image.Image) error { return tiff.Encode(f, img, nil) }, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
}
