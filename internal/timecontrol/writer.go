// Package timecontrol writes the per-instance speed multiplier that a
// controlled process polls to scale its own clock.
//
// The channel has no acknowledgement and no queue. Each instance owns one
// 4-byte artifact holding a little-endian IEEE-754 float32; the latest write
// wins and a reader may miss intermediate values.
package timecontrol

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultDir is where artifacts live unless configured otherwise.
	DefaultDir = "/tmp"

	// filePrefix is the artifact name prefix; the instance id is appended.
	filePrefix = "time_control_"

	// messageSize is the encoded size of one multiplier.
	messageSize = 4
)

// Writer writes speed multipliers for instances sharing one directory.
//
// Writes for distinct instances never contend. Concurrent writers for the same
// instance are not linearizable; the last rename wins.
type Writer struct {
	dir string
}

// NewWriter returns a Writer rooted at dir. An empty dir selects DefaultDir.
func NewWriter(dir string) *Writer {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	return &Writer{dir: dir}
}

// Path returns the artifact location for an instance.
func (w *Writer) Path(instance int) string {
	return filepath.Join(w.dir, filePrefix+strconv.Itoa(instance))
}

// SetSpeed atomically overwrites the instance's artifact with multiplier.
func (w *Writer) SetSpeed(multiplier float32, instance int) error {
	if instance < 0 {
		return fmt.Errorf("invalid instance %d", instance)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create time control dir: %w", err)
	}

	path := w.Path(instance)
	tmp, err := os.CreateTemp(w.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create time control temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(Encode(multiplier)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write time control: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close time control: %w", err)
	}
	// The controlled process opens the file read-only; make that possible
	// regardless of the umask CreateTemp applied.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to publish time control: %w", err)
	}
	return nil
}

// ReadSpeed returns the multiplier currently stored for instance.
func (w *Writer) ReadSpeed(instance int) (float32, error) {
	raw, err := os.ReadFile(w.Path(instance))
	if err != nil {
		return 0, err
	}
	return Decode(raw)
}

// Encode serializes a multiplier as a fixed-width little-endian float32.
func Encode(multiplier float32) []byte {
	buf := make([]byte, messageSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(multiplier))
	return buf
}

// Decode parses a message produced by Encode.
func Decode(raw []byte) (float32, error) {
	if len(raw) != messageSize {
		return 0, fmt.Errorf("invalid time control message length: %d (expected %d)",
			len(raw), messageSize)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(raw)), nil
}
