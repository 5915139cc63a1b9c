// Package sourcetest provides an in-memory Decoder for tests.
package sourcetest

import (
	"errors"
	"image"
	"image/color"
	"sync"
)

// Decoder is a synthetic video of Frames frames at Rate fps. Each decoded
// frame is a 1x1 RGBA image whose red channel is the frame index mod 256
// and whose green channel is index/256 mod 256.
type Decoder struct {
	Frames int
	Rate   float64

	// FailAt makes Read and Grab fail when positioned on this index (0 disables).
	FailAt int
	// SeekErr is returned by every Seek call when set.
	SeekErr error

	mu     sync.Mutex
	pos    int
	seeks  []int
	grabs  int
	reads  int
	closed bool
}

// New returns a Decoder with the given frame count and rate.
func New(frames int, fps float64) *Decoder {
	return &Decoder{Frames: frames, Rate: fps}
}

func (d *Decoder) FrameCount() int { return d.Frames }

func (d *Decoder) FPS() float64 { return d.Rate }

func (d *Decoder) Seek(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SeekErr != nil {
		return d.SeekErr
	}
	if index < 0 {
		return errors.New("negative seek")
	}
	d.seeks = append(d.seeks, index)
	d.pos = index
	return nil
}

func (d *Decoder) Grab() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.readable() {
		return false
	}
	d.grabs++
	d.pos++
	return true
}

func (d *Decoder) Read() (image.Image, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.readable() {
		return nil, false
	}
	d.reads++
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{R: uint8(d.pos % 256), G: uint8(d.pos / 256 % 256), A: 255})
	d.pos++
	return img, true
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Decoder) readable() bool {
	if d.closed || d.pos >= d.Frames {
		return false
	}
	return d.FailAt == 0 || d.pos != d.FailAt
}

// Seeks returns the targets of every Seek call so far.
func (d *Decoder) Seeks() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.seeks...)
}

// Grabs returns how many frames were skipped with Grab.
func (d *Decoder) Grabs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabs
}

// Reads returns how many frames were decoded.
func (d *Decoder) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Closed reports whether Close has been called.
func (d *Decoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// FrameIndex recovers the frame index encoded in an image produced by Read.
func FrameIndex(img image.Image) int {
	r, g, _, _ := img.At(0, 0).RGBA()
	return int(r>>8) + int(g>>8)*256
}
