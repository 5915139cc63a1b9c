// Package capture adapts OpenCV's VideoCapture to source.Decoder.
package capture

import (
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	vserrors "github.com/five82/vidsample/internal/errors"
)

// Decoder reads frames from a video file through OpenCV.
// It is not safe for concurrent use; the sampler goroutine owns it.
type Decoder struct {
	path    string
	vc      *gocv.VideoCapture
	frame   gocv.Mat
	scratch gocv.Mat
	total   int
	fps     float64

	closeOnce sync.Once
}

// Open opens path for decoding. Files that OpenCV cannot open, or that
// report no frame rate, fail with a KindOpen error.
func Open(path string) (*Decoder, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, vserrors.NewOpenError(path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, vserrors.NewOpenError(path, fmt.Errorf("no decodable video stream"))
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 || math.IsNaN(fps) {
		_ = vc.Close()
		return nil, vserrors.NewOpenError(path, fmt.Errorf("invalid frame rate %v", fps))
	}

	d := &Decoder{
		path:    path,
		vc:      vc,
		frame:   gocv.NewMat(),
		scratch: gocv.NewMat(),
		fps:     fps,
	}
	d.total = d.countFrames()
	return d, nil
}

// countFrames prefers the container frame count and falls back to seeking
// to the end of the stream when the header does not carry one.
func (d *Decoder) countFrames() int {
	if n := d.vc.Get(gocv.VideoCaptureFrameCount); n > 0 {
		return int(n)
	}
	d.vc.Set(gocv.VideoCapturePosAVIRatio, 1)
	n := d.vc.Get(gocv.VideoCapturePosFrames)
	d.vc.Set(gocv.VideoCapturePosAVIRatio, 0)
	if n < 0 {
		return 0
	}
	return int(n)
}

// Path returns the opened file path.
func (d *Decoder) Path() string { return d.path }

func (d *Decoder) FrameCount() int { return d.total }

func (d *Decoder) FPS() float64 { return d.fps }

// Seek positions the capture so the next Read returns frame index.
func (d *Decoder) Seek(index int) error {
	if index < 0 || (d.total > 0 && index > d.total) {
		return fmt.Errorf("cannot seek %s to frame %d of %d", d.path, index, d.total)
	}
	d.vc.Set(gocv.VideoCapturePosFrames, float64(index))
	return nil
}

// Grab decodes and discards one frame. VideoCapture.Grab reports no status,
// so a Read into a scratch Mat is used to detect the end of the stream.
func (d *Decoder) Grab() bool {
	return d.vc.Read(&d.scratch) && !d.scratch.Empty()
}

// Read decodes one frame and converts it from OpenCV's BGR order to RGBA.
func (d *Decoder) Read() (image.Image, bool) {
	if !d.vc.Read(&d.frame) || d.frame.Empty() {
		return nil, false
	}
	img, err := d.frame.ToImage()
	if err != nil {
		return nil, false
	}
	return img, true
}

// Close releases the capture and its buffers. It is safe to call more than once.
func (d *Decoder) Close() error {
	var err error
	d.closeOnce.Do(func() {
		_ = d.frame.Close()
		_ = d.scratch.Close()
		err = d.vc.Close()
	})
	return err
}
