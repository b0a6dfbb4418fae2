package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteAppendLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), SQLiteFilename)
	s, err := OpenSQLite(path, testSpins)
	require.NoError(t, err)
	require.NoError(t, s.Append(Row{H: -1, Samples: 10, SpinDown: []int{9, 8, 7}}))
	require.NoError(t, s.Append(Row{H: 1, Samples: 10, SpinDown: []int{1, 2, 3}}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, testSpins)
	require.NoError(t, err)
	defer s.Close()
	visited, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1}, visited)

	row, err := s.Get(-1)
	require.NoError(t, err)
	assert.Equal(t, Row{H: -1, Samples: 10, SpinDown: []int{9, 8, 7}}, row)
}

func TestSQLiteRejectsDuplicate(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), SQLiteFilename), testSpins)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append(Row{H: 0, Samples: 1, SpinDown: []int{0, 0, 1}}))
	assert.Error(t, s.Append(Row{H: 0, Samples: 1, SpinDown: []int{0, 0, 1}}))
	visited, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, visited, 1)
}

func TestSQLiteSpinSetMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), SQLiteFilename)
	s, err := OpenSQLite(path, testSpins)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenSQLite(path, []int{2, 5})
	assert.True(t, errors.Is(err, ErrCorrupt))
}
