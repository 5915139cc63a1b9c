// Package ffprobe reads container metadata for a video file using ffprobe.
//
// The decoder reports frame count and rate too, but container headers are
// sometimes missing or wrong. Probe gives the CLI a second opinion for the
// startup summary and lets it reject files without a video stream before
// the pipeline starts.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	vserrors "github.com/five82/vidsample/internal/errors"
)

// Binary is the ffprobe executable looked up on PATH.
var Binary = "ffprobe"

// VideoProbe contains properties of the first video stream.
type VideoProbe struct {
	Codec        string
	Width        int
	Height       int
	DurationSecs float64
	FrameRate    float64
	NbFrames     int
}

// EstimatedFrames returns the stream frame count, falling back to
// duration x rate when the container does not record nb_frames.
func (p *VideoProbe) EstimatedFrames() int {
	if p.NbFrames > 0 {
		return p.NbFrames
	}
	if p.DurationSecs > 0 && p.FrameRate > 0 {
		return int(p.DurationSecs*p.FrameRate + 0.5)
	}
	return 0
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	NbFrames     string `json:"nb_frames"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

// Probe runs ffprobe on path and returns the first video stream's properties.
func Probe(ctx context.Context, path string) (*VideoProbe, error) {
	cmd := exec.CommandContext(ctx, Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, vserrors.WrapExecError(Binary, err, strings.TrimSpace(stderr.String()))
	}

	probe, err := parseFFprobeOutput(output)
	if err != nil {
		return nil, vserrors.NewProbeError("failed to parse ffprobe output", err)
	}
	return videoProbe(probe, path)
}

func parseFFprobeOutput(data []byte) (*ffprobeOutput, error) {
	var result ffprobeOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func videoProbe(probe *ffprobeOutput, path string) (*VideoProbe, error) {
	var stream *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "video" {
			stream = &probe.Streams[i]
			break
		}
	}
	if stream == nil {
		return nil, vserrors.NewProbeError(fmt.Sprintf("no video stream found in %s", path), nil)
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, vserrors.NewProbeError(
			fmt.Sprintf("invalid dimensions in %s: %dx%d", path, stream.Width, stream.Height), nil)
	}

	result := &VideoProbe{
		Codec:  stream.CodecName,
		Width:  stream.Width,
		Height: stream.Height,
	}

	if d, ok := parseFloat(stream.Duration); ok {
		result.DurationSecs = d
	} else if d, ok := parseFloat(probe.Format.Duration); ok {
		result.DurationSecs = d
	}

	if rate, ok := parseRational(stream.AvgFrameRate); ok {
		result.FrameRate = rate
	} else if rate, ok := parseRational(stream.RFrameRate); ok {
		result.FrameRate = rate
	}

	if n, err := strconv.Atoi(stream.NbFrames); err == nil && n > 0 {
		result.NbFrames = n
	}

	return result, nil
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// parseRational parses ffprobe rates such as "30000/1001" or "25".
func parseRational(s string) (float64, bool) {
	num, den, found := strings.Cut(s, "/")
	if !found {
		return parseFloat(s)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return n / d, true
}
