// Package imaging turns uploaded image bytes into the fixed-size tensor the
// waste model expects.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"mime"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// Size is the edge length of the model input. It is a contract with the
	// model asset and is not configurable.
	Size = 48
	// Channels is the number of input channels.
	Channels = 1
	// TensorLen is the element count of one input tensor.
	TensorLen = Size * Size * Channels
)

// Shape is the NHWC input shape.
var Shape = []int64{1, Size, Size, Channels}

var ErrDecode = errors.New("cannot decode image")

// Decode parses image bytes in any registered format.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// Tensor decodes data and preprocesses it with ToTensor.
func Tensor(data []byte) ([]float32, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return ToTensor(img), nil
}

// ToTensor keeps the first color channel and resamples it to Size x Size.
// Output pixel (x, y) samples the source at (x*w/Size, y*h/Size) and blends
// the four neighbours linearly, without an anti-aliasing kernel and without
// rounding the channel values. The result is float32 in the 0-255 range,
// row major.
func ToTensor(img image.Image) []float32 {
	src, w, h := firstChannel(img)
	out := make([]float32, TensorLen)
	if w == 0 || h == 0 {
		return out
	}
	scaleX := float64(w) / Size
	scaleY := float64(h) / Size
	for y := 0; y < Size; y++ {
		fy := float64(y) * scaleY
		y0 := int(fy)
		y1 := min(y0+1, h-1)
		dy := float32(fy - float64(y0))
		for x := 0; x < Size; x++ {
			fx := float64(x) * scaleX
			x0 := int(fx)
			x1 := min(x0+1, w-1)
			dx := float32(fx - float64(x0))

			top := src[y0*w+x0] + (src[y0*w+x1]-src[y0*w+x0])*dx
			bottom := src[y1*w+x0] + (src[y1*w+x1]-src[y1*w+x0])*dx
			out[y*Size+x] = top + (bottom-top)*dy
		}
	}
	return out
}

func firstChannel(img image.Image) ([]float32, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			plane[y*w+x] = float32(r >> 8)
		}
	}
	return plane, w, h
}

// contentTypes lists the media types with a registered decoder.
var contentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
}

// Supported reports whether contentType names a format Decode can read.
// Media type parameters are ignored.
func Supported(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && contentTypes[mt]
}

// Preview decodes data and scales it down to fit within maxEdge on both
// sides, keeping the aspect ratio. Images already small enough are only
// re-encoded. The result is always PNG.
func Preview(data []byte, maxEdge uint) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	thumb := resize.Thumbnail(maxEdge, maxEdge, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
