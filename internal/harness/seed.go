package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bhandras/gymharness/internal/env"
	"github.com/bhandras/gymharness/pkg/logger"
)

const (
	seedTemplateName = "magic_numbers_template.xml"
	seedOutputName   = "magic_numbers.xml"
	seedPlaceholder  = "SEED_HERE"
)

// TemplateSeeder writes the world seed into the game mod's magic numbers
// file by filling in the template next to it.
type TemplateSeeder struct {
	// Dir holds the template and receives the generated file.
	Dir string
}

var _ env.Seeder = (*TemplateSeeder)(nil)

// Apply implements env.Seeder.
func (s *TemplateSeeder) Apply(seed uint32) error {
	tmpl, err := os.ReadFile(filepath.Join(s.Dir, seedTemplateName))
	if err != nil {
		return fmt.Errorf("read seed template: %w", err)
	}
	quoted := []byte(strconv.Quote(strconv.FormatUint(uint64(seed), 10)))
	out := bytes.ReplaceAll(tmpl, []byte(seedPlaceholder), quoted)

	path := filepath.Join(s.Dir, seedOutputName)
	tmp, err := os.CreateTemp(s.Dir, seedOutputName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write seed file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename seed file: %w", err)
	}
	logger.Debugf("harness: wrote seed %d to %s", seed, path)
	return nil
}
