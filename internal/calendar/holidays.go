package calendar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runway-dev/runway/internal/model"
)

// FileSource reads holidays from a YAML file of the form:
//
//	holidays:
//	  - 2026-01-01
//	  - 2026-12-25
type FileSource struct {
	Path string
}

type holidayFile struct {
	Holidays []string `yaml:"holidays"`
}

// Holidays loads and parses the holiday file.
func (s FileSource) Holidays() ([]time.Time, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading holiday file: %w", err)
	}

	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing holiday file: %w", err)
	}

	days := make([]time.Time, 0, len(f.Holidays))
	for _, s := range f.Holidays {
		d, err := model.ParseDay(s)
		if err != nil {
			return nil, fmt.Errorf("parsing holiday date %q: %w", s, err)
		}
		days = append(days, d)
	}
	return days, nil
}

// StaticSource is a fixed list of holidays, mainly for tests and embedding.
type StaticSource []time.Time

// Holidays returns the list unchanged.
func (s StaticSource) Holidays() ([]time.Time, error) {
	return s, nil
}
