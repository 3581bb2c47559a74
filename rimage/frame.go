// Package rimage holds the pixel buffers captured from a camera for coloring scans.
package rimage

import (
	"image"
	"image/color"
	"image/draw"
	// register decoders used when frames are loaded from disk.
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi"
	_ "golang.org/x/image/bmp"
)

// Frame is a row-major RGBA pixel buffer. Row zero is the top of the image.
type Frame struct {
	width, height int
	pix           []color.NRGBA
}

// NewFrame returns a black frame of the given size.
func NewFrame(width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid frame size (%d, %d)", width, height)
	}
	return &Frame{width: width, height: height, pix: make([]color.NRGBA, width*height)}, nil
}

// NewFrameFromPixels wraps a row-major pixel slice. len(pix) must equal width*height.
func NewFrameFromPixels(width, height int, pix []color.NRGBA) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid frame size (%d, %d)", width, height)
	}
	if len(pix) != width*height {
		return nil, errors.Errorf("frame of size (%d, %d) needs %d pixels, got %d", width, height, width*height, len(pix))
	}
	return &Frame{width: width, height: height, pix: pix}, nil
}

// NewUniformFrame returns a frame filled with c.
func NewUniformFrame(width, height int, c color.NRGBA) (*Frame, error) {
	f, err := NewFrame(width, height)
	if err != nil {
		return nil, err
	}
	for i := range f.pix {
		f.pix[i] = c
	}
	return f, nil
}

// NewFrameFromImage copies any image into a frame.
func NewFrameFromImage(img image.Image) (*Frame, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	return fromNRGBA(nrgba)
}

func fromNRGBA(img *image.NRGBA) (*Frame, error) {
	f, err := NewFrame(img.Rect.Dx(), img.Rect.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			f.pix[y*f.width+x] = img.NRGBAAt(x+img.Rect.Min.X, y+img.Rect.Min.Y)
		}
	}
	return f, nil
}

// ReadFrame decodes an image file (png, jpeg, bmp, ppm or qoi) into a frame.
func ReadFrame(path string) (*Frame, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read frame %q", path)
	}
	return NewFrameFromImage(img)
}

// Width returns the horizontal size of the frame.
func (f *Frame) Width() int {
	return f.width
}

// Height returns the vertical size of the frame.
func (f *Frame) Height() int {
	return f.height
}

// In reports whether (x, y) is a valid pixel index.
func (f *Frame) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.width && y < f.height
}

// At returns the pixel at (x, y). The caller must check bounds.
func (f *Frame) At(x, y int) color.NRGBA {
	return f.pix[y*f.width+x]
}

// Set sets the pixel at (x, y).
func (f *Frame) Set(x, y int, c color.NRGBA) {
	f.pix[y*f.width+x] = c
}

// Image returns a copy of the frame as a standard image.
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.width, f.height))
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			img.SetNRGBA(x, y, f.pix[y*f.width+x])
		}
	}
	return img
}

// FlipVertical returns the frame mirrored top to bottom. Sensor buffers that store the bottom row
// first are converted this way before sampling.
func (f *Frame) FlipVertical() *Frame {
	flipped, err := fromNRGBA(imaging.FlipV(f.Image()))
	if err != nil {
		// sizes are preserved by the flip
		panic(err)
	}
	return flipped
}

// Resize returns the frame scaled to width by height with linear filtering.
func (f *Frame) Resize(width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid frame size (%d, %d)", width, height)
	}
	if width == f.width && height == f.height {
		return f, nil
	}
	return fromNRGBA(imaging.Resize(f.Image(), width, height, imaging.Linear))
}
