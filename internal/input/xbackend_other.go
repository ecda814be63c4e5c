//go:build !linux

package input

import "fmt"

// DefaultUinputPath is the kernel uinput control device.
const DefaultUinputPath = "/dev/uinput"

// XBackendConfig describes the shared display and the devices to create.
type XBackendConfig struct {
	Display    string
	UinputPath string
	Width      int
	Height     int
}

// XBackend is only available on Linux.
type XBackend struct{}

// NewXBackend reports that virtual pointers need uinput.
func NewXBackend(cfg XBackendConfig) (*XBackend, error) {
	_ = cfg
	return nil, fmt.Errorf("virtual pointers require linux uinput")
}

// CreatePointer implements Backend.
func (b *XBackend) CreatePointer(name string) (Device, error) {
	return nil, fmt.Errorf("virtual pointers require linux uinput")
}
