package input

import (
	"context"
	"sync"
	"time"

	"github.com/bhandras/gymharness/internal/clock"
	"github.com/bhandras/gymharness/pkg/logger"
)

// Channel is one instance's view of the shared display: a bound virtual
// pointer plus the keys and buttons it currently holds.
//
// Only state changes are sent to the device, so repeatedly setting the same
// held set is free.
type Channel struct {
	id       int
	keyDelay time.Duration
	clock    clock.Clock

	mu          sync.Mutex
	device      Device
	heldKeys    map[Key]struct{}
	heldButtons map[MouseButton]struct{}
	x, y        int
	closed      bool
}

func newChannel(id int, dev Device, keyDelay time.Duration, c clock.Clock) *Channel {
	return &Channel{
		id:          id,
		keyDelay:    keyDelay,
		clock:       c,
		device:      dev,
		heldKeys:    make(map[Key]struct{}),
		heldButtons: make(map[MouseButton]struct{}),
	}
}

// ID returns the instance id the channel is bound to.
func (c *Channel) ID() int { return c.id }

// SetHeldKeys makes keys the exact set of held keys: keys not in the set are
// released, new keys are pressed. Unknown keys are rejected before any event
// is sent.
func (c *Channel) SetHeldKeys(keys []Key) error {
	want := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, err := KeyCode(k); err != nil {
			return err
		}
		want[k] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	for _, k := range sortedKeys(c.heldKeys) {
		if _, ok := want[k]; ok {
			continue
		}
		code, _ := KeyCode(k)
		if err := c.device.KeyEvent(code, false); err != nil {
			return err
		}
		delete(c.heldKeys, k)
	}
	for _, k := range sortedKeys(want) {
		if _, ok := c.heldKeys[k]; ok {
			continue
		}
		code, _ := KeyCode(k)
		if err := c.device.KeyEvent(code, true); err != nil {
			return err
		}
		c.heldKeys[k] = struct{}{}
	}
	if logger.Enabled(logger.LevelTrace) {
		logger.Tracef("input[%d]: held keys %v", c.id, sortedKeys(c.heldKeys))
	}
	return nil
}

// SetHeldMouseButtons makes buttons the exact set of held pointer buttons.
func (c *Channel) SetHeldMouseButtons(buttons []MouseButton) error {
	want := make(map[MouseButton]struct{}, len(buttons))
	for _, b := range buttons {
		want[b] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	for _, b := range sortedButtons(c.heldButtons) {
		if _, ok := want[b]; ok {
			continue
		}
		if err := c.device.ButtonEvent(b, false); err != nil {
			return err
		}
		delete(c.heldButtons, b)
	}
	for _, b := range sortedButtons(want) {
		if _, ok := c.heldButtons[b]; ok {
			continue
		}
		if err := c.device.ButtonEvent(b, true); err != nil {
			return err
		}
		c.heldButtons[b] = struct{}{}
	}
	return nil
}

// MoveMouse warps the instance's pointer to absolute display coordinates.
func (c *Channel) MoveMouse(x, y int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.device.MoveTo(x, y); err != nil {
		return err
	}
	c.x, c.y = x, y
	return nil
}

// KeySequence presses and releases each key in order, holding each for the
// channel's key delay and pausing the same delay between keys.
func (c *Channel) KeySequence(ctx context.Context, keys []Key) error {
	codes := make([]int, 0, len(keys))
	for _, k := range keys {
		code, err := KeyCode(k)
		if err != nil {
			return err
		}
		codes = append(codes, code)
	}

	for _, code := range codes {
		if err := c.keyEvent(code, true); err != nil {
			return err
		}
		if err := clock.Sleep(ctx, c.clock, c.keyDelay); err != nil {
			_ = c.keyEvent(code, false)
			return err
		}
		if err := c.keyEvent(code, false); err != nil {
			return err
		}
		if err := clock.Sleep(ctx, c.clock, c.keyDelay); err != nil {
			return err
		}
	}
	return nil
}

// HeldKeys returns the currently held keys in sorted order.
func (c *Channel) HeldKeys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.heldKeys)
}

// HeldMouseButtons returns the currently held buttons in sorted order.
func (c *Channel) HeldMouseButtons() []MouseButton {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedButtons(c.heldButtons)
}

// Position returns the last cursor position set through MoveMouse.
func (c *Channel) Position() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y
}

func (c *Channel) keyEvent(code int, press bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.device.KeyEvent(code, press)
}

// close releases anything still held and destroys the device. Ownership of
// the device ends here.
func (c *Channel) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	for k := range c.heldKeys {
		code, _ := KeyCode(k)
		_ = c.device.KeyEvent(code, false)
	}
	for b := range c.heldButtons {
		_ = c.device.ButtonEvent(b, false)
	}
	c.heldKeys = make(map[Key]struct{})
	c.heldButtons = make(map[MouseButton]struct{})
	return c.device.Close()
}
