package converter

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"nstbot/internal/core/domain"
	"nstbot/internal/nst"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for images without any pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// ImageCodec loads images as square [0,1] tensors of a fixed resolution and writes tensors back as PNG.
type ImageCodec struct {
	size int
}

func NewImageCodec(size int) (*ImageCodec, error) {
	if size <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", size)
	}
	return &ImageCodec{size: size}, nil
}

func (c *ImageCodec) Size() int {
	return c.size
}

// Load decodes the image at path, scales its shorter side to the codec size and center-crops it to a square.
// The tensor always has three channels; grayscale sources repeat their value in each.
func (c *ImageCodec) Load(path string) (*nst.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening image %w", err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("could not decode image")
		return nil, fmt.Errorf("error decoding image %w", err)
	}

	b := src.Bounds()
	log.Debug().Str("path", path).Str("format", format).Int("width", b.Dx()).Int("height", b.Dy()).
		Msg("decoded image")

	fitted, err := c.fit(src)
	if err != nil {
		return nil, err
	}

	return ToTensor(fitted), nil
}

func (c *ImageCodec) fit(src image.Image) (image.Image, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}

	scale := float64(c.size) / float64(min(b.Dx(), b.Dy()))
	w := max(c.size, int(math.Round(float64(b.Dx())*scale)))
	h := max(c.size, int(math.Round(float64(b.Dy())*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	x0 := (w - c.size) / 2
	y0 := (h - c.size) / 2
	crop := image.Rect(x0, y0, x0+c.size, y0+c.size)

	return dst.SubImage(crop), nil
}

// Save clamps t to [0,1] and writes it as PNG. The file is renamed into place so readers never see a partial
// checkpoint.
func (c *ImageCodec) Save(t *nst.Tensor, path string) error {
	clamped := t.Clone()
	clamped.Clamp(0, 1)

	img, err := FromTensor(clamped)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.png")
	if err != nil {
		return fmt.Errorf("error creating checkpoint file %w", err)
	}

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("error encoding png %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error closing checkpoint file %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error moving checkpoint into place %w", err)
	}

	log.Debug().Str("path", path).Msg("saved image")

	return nil
}

// ToTensor converts img to a three channel, channel-major tensor with values in [0,1].
func ToTensor(img image.Image) *nst.Tensor {
	b := img.Bounds()

	t := nst.NewTensor(3, b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			t.Set(0, y, x, float64(r)/0xffff)
			t.Set(1, y, x, float64(g)/0xffff)
			t.Set(2, y, x, float64(bl)/0xffff)
		}
	}

	return t
}

// FromTensor converts a one or three channel tensor with values in [0,1] back to an image.
func FromTensor(t *nst.Tensor) (image.Image, error) {
	rect := image.Rect(0, 0, t.W, t.H)

	switch t.C {
	case 1:
		img := image.NewGray(rect)
		for y := 0; y < t.H; y++ {
			for x := 0; x < t.W; x++ {
				img.SetGray(x, y, color.Gray{Y: toByte(t.At(0, y, x))})
			}
		}
		return img, nil
	case 3:
		img := image.NewNRGBA(rect)
		for y := 0; y < t.H; y++ {
			for x := 0; x < t.W; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: toByte(t.At(0, y, x)),
					G: toByte(t.At(1, y, x)),
					B: toByte(t.At(2, y, x)),
					A: 0xff,
				})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %d channels", domain.ErrShapeMismatch, t.C)
	}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 0xff))
}
