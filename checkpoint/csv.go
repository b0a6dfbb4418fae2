package checkpoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/rs/zerolog/log"
)

// CSVStore is the spin table file: a header line followed by one line per
// completed field value.
type CSVStore struct {
	path    string
	spinIDs []int
	f       *os.File
	w       *csv.Writer
}

// OpenCSV opens (creating if needed) the spin table in dir. A new or empty
// file gets a header for spinIDs.
func OpenCSV(dir string, spinIDs []int) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, Filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s := &CSVStore{path: path, spinIDs: slices.Clone(spinIDs), f: f, w: csv.NewWriter(f)}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		log.Info().Str("path", path).Int("spins", len(spinIDs)).Msg("creating-spin-table")
		if err := s.write(Header(spinIDs)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *CSVStore) Load() ([]float64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	want := Header(s.spinIDs)
	r := csv.NewReader(f)
	r.FieldsPerRecord = len(want)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading header: %w", ErrCorrupt, s.path, err)
	}
	if !slices.Equal(header, want) {
		return nil, fmt.Errorf("%w: %s: header does not match the active spin set", ErrCorrupt, s.path)
	}

	var visited []float64
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
		}
		h, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", ErrCorrupt, s.path, line, err)
		}
		visited = append(visited, h)
	}
	return visited, nil
}

func parseRecord(rec []string) (float64, error) {
	h, err := strconv.ParseFloat(rec[0], 64)
	if err != nil {
		return 0, err
	}
	for _, field := range rec[1:] {
		if _, err := strconv.Atoi(field); err != nil {
			return 0, err
		}
	}
	return h, nil
}

func (s *CSVStore) Append(row Row) error {
	if err := checkRow(row, len(s.spinIDs)); err != nil {
		return err
	}
	rec := make([]string, 0, len(row.SpinDown)+2)
	rec = append(rec, Key(row.H), strconv.Itoa(row.Samples))
	for _, d := range row.SpinDown {
		rec = append(rec, strconv.Itoa(d))
	}
	return s.write(rec)
}

func (s *CSVStore) write(rec []string) error {
	if err := s.w.Write(rec); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *CSVStore) Close() error {
	return s.f.Close()
}
