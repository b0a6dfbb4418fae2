package checkpoint

import (
	"database/sql"
	"fmt"
	"slices"

	_ "modernc.org/sqlite"
)

// SQLiteFilename is the mirror database inside a working directory.
const SQLiteFilename = "spin_table.db"

const schema = `
CREATE TABLE IF NOT EXISTS spins (
	position INTEGER PRIMARY KEY,
	spin_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS spin_table (
	h_key TEXT PRIMARY KEY,
	h DOUBLE NOT NULL,
	samples BIGINT NOT NULL,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS spin_down (
	h_key TEXT NOT NULL,
	position INTEGER NOT NULL,
	down BIGINT NOT NULL,
	PRIMARY KEY (h_key, position),
	FOREIGN KEY (h_key) REFERENCES spin_table(h_key)
);
`

// SQLiteStore keeps the spin table in a SQLite database. Every appended row
// is written in its own transaction.
type SQLiteStore struct {
	*sql.DB
	spinIDs []int
}

// OpenSQLite opens the database at path and records the spin ordering on
// first use. Opening it later with a different ordering fails.
func OpenSQLite(path string, spinIDs []int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteStore{DB: db, spinIDs: slices.Clone(spinIDs)}
	if err := s.initSpins(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSpins() error {
	stored, err := s.storedSpins()
	if err != nil {
		return err
	}
	if len(stored) > 0 {
		if !slices.Equal(stored, s.spinIDs) {
			return fmt.Errorf("%w: database spin set does not match the active spin set", ErrCorrupt)
		}
		return nil
	}
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for pos, id := range s.spinIDs {
		if _, err := tx.Exec("INSERT INTO spins (position, spin_id) VALUES (?, ?)", pos, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) storedSpins() ([]int, error) {
	rows, err := s.Query("SELECT spin_id FROM spins ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Load() ([]float64, error) {
	rows, err := s.Query("SELECT h FROM spin_table ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var visited []float64
	for rows.Next() {
		var h float64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		visited = append(visited, h)
	}
	return visited, rows.Err()
}

func (s *SQLiteStore) Append(r Row) error {
	if err := checkRow(r, len(s.spinIDs)); err != nil {
		return err
	}
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	key := Key(r.H)
	if _, err := tx.Exec("INSERT INTO spin_table (h_key, h, samples) VALUES (?, ?, ?)",
		key, r.H, r.Samples); err != nil {
		return err
	}
	for pos, d := range r.SpinDown {
		if _, err := tx.Exec("INSERT INTO spin_down (h_key, position, down) VALUES (?, ?, ?)",
			key, pos, d); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get reads back the row recorded for h.
func (s *SQLiteStore) Get(h float64) (Row, error) {
	key := Key(h)
	r := Row{SpinDown: make([]int, len(s.spinIDs))}
	err := s.QueryRow("SELECT h, samples FROM spin_table WHERE h_key = ?", key).Scan(&r.H, &r.Samples)
	if err != nil {
		return Row{}, err
	}
	rows, err := s.Query("SELECT position, down FROM spin_down WHERE h_key = ? ORDER BY position", key)
	if err != nil {
		return Row{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var pos, d int
		if err := rows.Scan(&pos, &d); err != nil {
			return Row{}, err
		}
		if pos < 0 || pos >= len(r.SpinDown) {
			return Row{}, fmt.Errorf("%w: position %d out of range", ErrCorrupt, pos)
		}
		r.SpinDown[pos] = d
	}
	return r, rows.Err()
}
