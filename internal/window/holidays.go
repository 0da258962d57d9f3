package window

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Holiday is one entry of the holidays file.
type Holiday struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

type holidaysFile struct {
	Holidays []Holiday `yaml:"holidays"`
}

// Holidays is a set of calendar dates, compared in the caller's location.
type Holidays struct {
	dates map[string]string
}

// NewHolidays builds a set from entries, rejecting malformed dates.
func NewHolidays(entries []Holiday) (*Holidays, error) {
	h := &Holidays{dates: make(map[string]string, len(entries))}
	for _, e := range entries {
		d, err := time.Parse(dateLayout, e.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", e.Date, err)
		}
		h.dates[d.Format(dateLayout)] = e.Name
	}
	return h, nil
}

// LoadHolidays reads a YAML holidays file. A missing file yields an empty set.
//
//	holidays:
//	  - date: 2026-09-21
//	    name: Yom Kippur
func LoadHolidays(path string) (*Holidays, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Holidays{dates: map[string]string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var f holidaysFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewHolidays(f.Holidays)
}

// IsHoliday implements Calendar.
func (h *Holidays) IsHoliday(t time.Time) bool {
	if h == nil {
		return false
	}
	_, ok := h.dates[t.Format(dateLayout)]
	return ok
}

// Name returns the holiday name for t, if any.
func (h *Holidays) Name(t time.Time) (string, bool) {
	if h == nil {
		return "", false
	}
	n, ok := h.dates[t.Format(dateLayout)]
	return n, ok
}

// Len returns the number of dates in the set.
func (h *Holidays) Len() int {
	if h == nil {
		return 0
	}
	return len(h.dates)
}
