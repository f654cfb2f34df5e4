// Package camera grabs single frames from a video device for the text
// extraction surface.
//
// The device is held only for the duration of one capture: ffmpeg opens the
// camera, emits one JPEG frame to stdout, and exits, so the stream is
// released the moment the frame exists.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"tlahtolli/internal/config"
)

// FrameSource produces one still image per call.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

// FrameGrabber captures frames from a v4l2 (or similar) device via ffmpeg.
type FrameGrabber struct {
	cfg config.CameraConfig
}

// NewFrameGrabber creates a grabber from camera config, applying defaults.
func NewFrameGrabber(cfg config.CameraConfig) *FrameGrabber {
	if cfg.CaptureCommand == "" {
		cfg.CaptureCommand = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	return &FrameGrabber{cfg: cfg}
}

// Capture acquires the camera, grabs one JPEG frame, and releases the device.
func (g *FrameGrabber) Capture(ctx context.Context) ([]byte, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", g.cfg.InputFormat,
		"-i", g.cfg.Device,
		"-frames:v", "1",
		"-f", "image2",
		"-codec:v", "mjpeg",
		"-",
	}

	cmd := exec.CommandContext(ctx, g.cfg.CaptureCommand, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("camera capture: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("camera capture: no frame produced: %s", bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
