// Package info reads the state a game reports about itself through its env
// dir.
//
// The game appends one JSON object per simulated tick to <envdir>/info, e.g.
//
//	{"tick": 1042, "is_alive": true, "x": 210.5, "y": 96.0, "gold": 12}
//
// Only the newest line matters; older lines are never re-read.
package info

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/bhandras/gymharness/internal/env"
)

// tailSize bounds how much of the file is read to find the last line.
const tailSize = 64 * 1024

// ErrNoInfo is returned before the game has written a complete line.
var ErrNoInfo = errors.New("no info reported yet")

// FileSource is an env.InfoSource backed by the game's info file.
type FileSource struct {
	path string

	mu      sync.Mutex
	current env.Info
}

var _ env.InfoSource = (*FileSource)(nil)

// NewFileSource returns a source for the info file in envDir.
func NewFileSource(envDir string) *FileSource {
	return &FileSource{path: filepath.Join(envDir, "info")}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string { return s.path }

// OnTick implements env.InfoSource. On error the previous snapshot is kept.
func (s *FileSource) OnTick() (env.Info, error) {
	line, err := lastLine(s.path)
	if err != nil {
		return nil, err
	}
	snap, err := Parse(line)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	return snap.Clone(), nil
}

// CurrentInfo implements env.InfoSource.
func (s *FileSource) CurrentInfo() env.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Parse decodes one JSON object into a snapshot. Integral numbers become
// int64 so tick comparisons are exact.
func Parse(line []byte) (env.Info, error) {
	if !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("invalid info line %q", line)
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return nil, fmt.Errorf("info line is not an object: %q", line)
	}

	snap := env.Info{}
	root.ForEach(func(key, value gjson.Result) bool {
		snap[key.String()] = convert(value)
		return true
	})
	return snap, nil
}

func convert(v gjson.Result) any {
	switch v.Type {
	case gjson.Number:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
			return int64(v.Num)
		}
		return v.Num
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		return v.Str
	case gjson.Null:
		return nil
	default:
		return v.Value()
	}
}

// lastLine returns the last complete, non-empty line of the file. A trailing
// line without a newline may still be being written and is skipped.
func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoInfo
		}
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	offset := max(st.Size()-tailSize, 0)
	buf := make([]byte, st.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	end := bytes.LastIndexByte(buf, '\n')
	for end >= 0 {
		start := bytes.LastIndexByte(buf[:end], '\n') + 1
		if line := bytes.TrimSpace(buf[start:end]); len(line) > 0 {
			return line, nil
		}
		end = start - 1
	}
	return nil, ErrNoInfo
}
