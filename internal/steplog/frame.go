package steplog

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/bhandras/gymharness/internal/env"
)

// FrameDir returns the chunk directory holding an env step's frame.
func (s *Store) FrameDir(instance int, envStep int64) string {
	return filepath.Join(s.opts.Dir, s.runID,
		fmt.Sprintf("instance_%d", instance),
		fmt.Sprintf("step_chunk_%d", envStep/stepsPerChunk))
}

func (s *Store) writeFrame(instance int, envStep int64, f env.Frame) (string, error) {
	img, err := toImage(f)
	if err != nil {
		return "", err
	}

	dir := s.FrameDir(instance, envStep)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create frame dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_pixels.jpg", envStep))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create frame: %w", err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		out.Close()
		return "", fmt.Errorf("encode frame: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// toImage converts a packed RGB frame to an image.
func toImage(f env.Frame) (*image.RGBA, error) {
	if len(f.Pix) != f.Width*f.Height*3 {
		return nil, fmt.Errorf("frame has %d bytes for %dx%d", len(f.Pix), f.Width, f.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
