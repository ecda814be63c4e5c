package harness

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/bhandras/gymharness/internal/env"
)

// Capturer grabs a rectangle of the shared display as RGB pixels.
type Capturer interface {
	Capture(x, y, width, height int) (env.Frame, error)
}

// ImportCapturer captures with ImageMagick's import, which reads the X
// server directly and writes raw 8-bit RGB to stdout.
type ImportCapturer struct {
	Display string
	// Binary defaults to "import".
	Binary  string
	Timeout time.Duration
}

var _ Capturer = (*ImportCapturer)(nil)

// Capture implements Capturer.
func (c *ImportCapturer) Capture(x, y, width, height int) (env.Frame, error) {
	if width <= 0 || height <= 0 {
		return env.Frame{}, fmt.Errorf("invalid capture size %dx%d", width, height)
	}
	bin := c.Binary
	if bin == "" {
		bin = "import"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, importArgs(c.Display, x, y, width, height)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return env.Frame{}, fmt.Errorf("capture: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return frameFromRGB(stdout.Bytes(), width, height)
}

func importArgs(display string, x, y, width, height int) []string {
	var args []string
	if display != "" {
		args = append(args, "-display", display)
	}
	return append(args,
		"-window", "root",
		"-crop", fmt.Sprintf("%dx%d+%d+%d", width, height, x, y),
		"-depth", "8",
		"rgb:-",
	)
}

func frameFromRGB(pix []byte, width, height int) (env.Frame, error) {
	if want := width * height * 3; len(pix) != want {
		return env.Frame{}, fmt.Errorf("capture returned %d bytes, want %d", len(pix), want)
	}
	return env.Frame{Width: width, Height: height, Pix: pix}, nil
}
