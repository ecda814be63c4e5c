//go:build linux

package input

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bendahl/uinput"
	"github.com/bhandras/gymharness/pkg/logger"
)

const (
	// DefaultUinputPath is the kernel uinput control device.
	DefaultUinputPath = "/dev/uinput"

	// xinputTimeout bounds every xinput invocation.
	xinputTimeout = 5 * time.Second

	// enumerateDelay gives the X server time to pick up new uinput devices
	// before they are reattached.
	enumerateDelay = 250 * time.Millisecond
)

// XBackendConfig describes the shared display and the devices to create.
type XBackendConfig struct {
	// Display is the X display all pointers are created on (e.g. ":0").
	Display string
	// UinputPath is the uinput control device.
	UinputPath string
	// Width and Height bound absolute pointer coordinates.
	Width  int
	Height int
}

// XBackend creates one X input master per instance and feeds it from a
// dedicated uinput keyboard and touchpad. Events written to those devices
// reach only their master, so instances never share focus or cursor.
type XBackend struct {
	cfg XBackendConfig
}

var _ Backend = (*XBackend)(nil)

// NewXBackend returns a backend for the given display.
func NewXBackend(cfg XBackendConfig) (*XBackend, error) {
	if strings.TrimSpace(cfg.Display) == "" {
		return nil, fmt.Errorf("display is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid display size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.UinputPath == "" {
		cfg.UinputPath = DefaultUinputPath
	}
	if _, err := exec.LookPath("xinput"); err != nil {
		return nil, fmt.Errorf("xinput not found: %w", err)
	}
	return &XBackend{cfg: cfg}, nil
}

// CreatePointer implements Backend.
func (b *XBackend) CreatePointer(name string) (Device, error) {
	if err := b.xinput("create-master", name); err != nil {
		return nil, err
	}

	kbdName := name + "-uinput-kbd"
	padName := name + "-uinput-pad"

	kbd, err := uinput.CreateKeyboard(b.cfg.UinputPath, []byte(kbdName))
	if err != nil {
		_ = b.xinput("remove-master", name+" pointer")
		return nil, fmt.Errorf("failed to create keyboard: %w", err)
	}
	pad, err := uinput.CreateTouchPad(b.cfg.UinputPath, []byte(padName),
		0, int32(b.cfg.Width-1), 0, int32(b.cfg.Height-1))
	if err != nil {
		_ = kbd.Close()
		_ = b.xinput("remove-master", name+" pointer")
		return nil, fmt.Errorf("failed to create touchpad: %w", err)
	}

	time.Sleep(enumerateDelay)

	dev := &xDevice{
		backend: b,
		name:    name,
		kbd:     kbd,
		pad:     pad,
	}
	if err := b.xinput("reattach", kbdName, name+" keyboard"); err != nil {
		_ = dev.Close()
		return nil, err
	}
	if err := b.xinput("reattach", padName, name+" pointer"); err != nil {
		_ = dev.Close()
		return nil, err
	}

	logger.Debugf("Created X pointer %q on %s", name, b.cfg.Display)
	return dev, nil
}

func (b *XBackend) xinput(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), xinputTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "xinput", args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+b.cfg.Display)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("xinput %s: %w: %s", strings.Join(args, " "), err,
			strings.TrimSpace(string(out)))
	}
	return nil
}

type xDevice struct {
	backend *XBackend
	name    string
	kbd     uinput.Keyboard
	pad     uinput.TouchPad
}

func (d *xDevice) KeyEvent(code int, press bool) error {
	if press {
		return d.kbd.KeyDown(code)
	}
	return d.kbd.KeyUp(code)
}

func (d *xDevice) ButtonEvent(button MouseButton, press bool) error {
	switch {
	case button == ButtonLeft && press:
		return d.pad.LeftPress()
	case button == ButtonLeft:
		return d.pad.LeftRelease()
	case button == ButtonRight && press:
		return d.pad.RightPress()
	case button == ButtonRight:
		return d.pad.RightRelease()
	default:
		return fmt.Errorf("unsupported mouse button %v", button)
	}
}

func (d *xDevice) MoveTo(x, y int) error {
	x = clampInt(x, 0, d.backend.cfg.Width-1)
	y = clampInt(y, 0, d.backend.cfg.Height-1)
	return d.pad.MoveTo(int32(x), int32(y))
}

func (d *xDevice) Close() error {
	var errs []string
	if err := d.kbd.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := d.pad.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	// Removing the master returns any remaining slaves to the core master.
	if err := d.backend.xinput("remove-master", d.name+" pointer"); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close pointer %s: %s", d.name, strings.Join(errs, "; "))
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
