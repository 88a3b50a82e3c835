// Package feed loads per-instrument bar history from local CSV files.
package feed

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helmquant/helm/internal/core"
)

// Expected column order: date,open,high,low,close,volume. A header row is
// detected and skipped.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Loader reads bar histories from a data directory, one file per instrument.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads <dir>/<instrument>.csv and returns its bars sorted by time.
func (l *Loader) Load(instrument string) ([]core.Bar, error) {
	path := filepath.Join(l.dir, instrument+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s is empty", path))
	}

	start := 0
	if isHeader(rows[0]) {
		start = 1
	}

	bars := make([]core.Bar, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		bar, err := parseRow(instrument, rows[i])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s has no data rows", path))
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// LoadAll reads every listed instrument.
func (l *Loader) LoadAll(instruments []string) (map[string][]core.Bar, error) {
	out := make(map[string][]core.Bar, len(instruments))
	for _, inst := range instruments {
		bars, err := l.Load(inst)
		if err != nil {
			return nil, err
		}
		out[inst] = bars
	}
	return out, nil
}

func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, err := parseTime(row[0])
	return err != nil
}

func parseRow(instrument string, row []string) (core.Bar, error) {
	t, err := parseTime(row[0])
	if err != nil {
		return core.Bar{}, fmt.Errorf("bad date %q: %w", row[0], err)
	}

	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("bad price %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	vol, err := strconv.ParseInt(strings.TrimSpace(row[5]), 10, 64)
	if err != nil {
		return core.Bar{}, fmt.Errorf("bad volume %q: %w", row[5], err)
	}

	return core.Bar{
		Instrument: instrument,
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Volume:     vol,
		Time:       t,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}
