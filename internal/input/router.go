// Package input multiplexes synthetic keyboard and pointer input from several
// concurrent sessions onto one shared display.
//
// A Factory is built once per process and initialized once with the number of
// instances. Each instance gets its own virtual pointer identity (an X input
// master with a dedicated keyboard and pointer), so input for one instance can
// never land on another.
package input

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bhandras/gymharness/internal/clock"
	"github.com/bhandras/gymharness/pkg/logger"
)

var (
	// ErrAlreadyInitialized is returned by a second PreInit on one Factory.
	ErrAlreadyInitialized = errors.New("input router already initialized")

	// ErrUnknownInstance is returned for an instance id outside [0, N).
	ErrUnknownInstance = errors.New("unknown input instance")

	// ErrUnknownKey is returned for a key name missing from the key table.
	ErrUnknownKey = errors.New("unknown key")

	// ErrClosed is returned by channel operations after router teardown.
	ErrClosed = errors.New("input router closed")
)

// DefaultKeyDelay is the hold time and gap used by KeySequence.
const DefaultKeyDelay = 80 * time.Millisecond

// Device is one virtual pointer identity: a keyboard and a pointer bound to
// their own master on the shared display.
type Device interface {
	// KeyEvent presses or releases an evdev key code.
	KeyEvent(code int, press bool) error

	// ButtonEvent presses or releases a pointer button.
	ButtonEvent(button MouseButton, press bool) error

	// MoveTo warps the pointer to absolute display coordinates.
	MoveTo(x, y int) error

	// Close destroys the identity and its master on the display.
	Close() error
}

// Backend creates virtual pointer identities.
type Backend interface {
	CreatePointer(name string) (Device, error)
}

// CursorName returns the display-visible name of an instance's pointer.
func CursorName(instance int) string {
	return fmt.Sprintf("gymharness_cursor_%d", instance)
}

// Option configures a Factory.
type Option func(*Factory)

// WithKeyDelay sets the KeySequence delay for channels the factory creates.
func WithKeyDelay(d time.Duration) Option {
	return func(f *Factory) {
		if d > 0 {
			f.keyDelay = d
		}
	}
}

// WithClock overrides the clock channels use for KeySequence delays.
func WithClock(c clock.Clock) Option {
	return func(f *Factory) {
		if c != nil {
			f.clock = c
		}
	}
}

// Factory creates the process-wide Router. It must be constructed once and
// owned for the lifetime of the process.
type Factory struct {
	backend  Backend
	keyDelay time.Duration
	clock    clock.Clock

	mu          sync.Mutex
	initialized bool
}

// NewFactory returns a Factory that creates pointers through backend.
func NewFactory(backend Backend, opts ...Option) *Factory {
	f := &Factory{
		backend:  backend,
		keyDelay: DefaultKeyDelay,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PreInit creates n virtual pointers and returns the Router that owns them.
//
// It must run before any session exists. A second successful call is rejected
// with ErrAlreadyInitialized. If creation fails midway, the pointers created
// so far are destroyed and the factory stays uninitialized.
func (f *Factory) PreInit(n int) (*Router, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil, ErrAlreadyInitialized
	}
	if n <= 0 {
		return nil, fmt.Errorf("invalid instance count %d", n)
	}

	r := &Router{channels: make([]*Channel, 0, n)}
	for i := 0; i < n; i++ {
		dev, err := f.backend.CreatePointer(CursorName(i))
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("failed to create pointer %d: %w", i, err)
		}
		r.channels = append(r.channels, newChannel(i, dev, f.keyDelay, f.clock))
	}

	f.initialized = true
	logger.Infof("Created %d virtual pointers", n)
	return r, nil
}

// Router owns every instance's Channel. Channels are disjoint by
// construction, so no cross-instance locking is needed.
type Router struct {
	mu       sync.Mutex
	channels []*Channel
	closed   bool
}

// Len returns the number of instances the router serves.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Channel returns the input channel owned by instance.
func (r *Router) Channel(instance int) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if instance < 0 || instance >= len(r.channels) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstance, instance)
	}
	return r.channels[instance], nil
}

// Close destroys every pointer the router created. It is safe to call
// multiple times; only the first call releases devices.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	channels := r.channels
	r.mu.Unlock()

	var errs []error
	for _, ch := range channels {
		if err := ch.close(); err != nil {
			errs = append(errs, fmt.Errorf("pointer %d: %w", ch.id, err))
		}
	}
	if len(channels) > 0 {
		logger.Infof("Destroyed %d virtual pointers", len(channels))
	}
	return errors.Join(errs...)
}
