package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Window is a top-level X window and the process that owns it.
type Window struct {
	ID  string
	PID int
}

// WindowLocator finds game windows by title and places them on the display.
type WindowLocator interface {
	// Find returns the windows whose title matches the regular expression.
	Find(ctx context.Context, title string) ([]Window, error)
	// Place moves and resizes a window.
	Place(ctx context.Context, w Window, x, y, width, height int) error
}

// XdotoolLocator implements WindowLocator with xdotool.
type XdotoolLocator struct {
	Display string
	// Binary defaults to "xdotool".
	Binary string
}

var _ WindowLocator = (*XdotoolLocator)(nil)

// Find implements WindowLocator. Windows without a _NET_WM_PID are skipped.
func (l *XdotoolLocator) Find(ctx context.Context, title string) ([]Window, error) {
	out, err := l.run(ctx, "search", "--name", title)
	if err != nil {
		var exitErr *exec.ExitError
		// search exits 1 when nothing matches.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(bytes.TrimSpace(out)) == 0 {
			return nil, nil
		}
		return nil, err
	}

	var windows []Window
	for _, id := range strings.Fields(string(out)) {
		raw, err := l.run(ctx, "getwindowpid", id)
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil || pid <= 0 {
			continue
		}
		windows = append(windows, Window{ID: id, PID: pid})
	}
	return windows, nil
}

// Place implements WindowLocator.
func (l *XdotoolLocator) Place(ctx context.Context, w Window, x, y, width, height int) error {
	_, err := l.run(ctx,
		"windowsize", w.ID, strconv.Itoa(width), strconv.Itoa(height),
		"windowmove", w.ID, strconv.Itoa(x), strconv.Itoa(y),
	)
	return err
}

func (l *XdotoolLocator) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := l.Binary
	if bin == "" {
		bin = "xdotool"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	if l.Display != "" {
		cmd.Env = append(cmd.Environ(), "DISPLAY="+l.Display)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("xdotool %s: %w: %s", args[0], err,
			bytes.TrimSpace(stderr.Bytes()))
	}
	return out, nil
}

// windowClaims records which windows belong to live processes so instances
// sharing a title do not take each other's windows.
type windowClaims struct {
	mu    sync.Mutex
	owner map[string]int
}

func newWindowClaims() *windowClaims {
	return &windowClaims{owner: make(map[string]int)}
}

// claim assigns id to instance unless another instance holds it.
func (c *windowClaims) claim(id string, instance int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owner[id]; ok && owner != instance {
		return false
	}
	c.owner[id] = instance
	return true
}

func (c *windowClaims) claimedByOther(id string, instance int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owner[id]
	return ok && owner != instance
}

func (c *windowClaims) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owner, id)
}
