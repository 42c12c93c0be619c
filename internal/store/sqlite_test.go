package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLite_WALMode(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "wal.db"))
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
}

func TestSQLiteStore_UnknownJobForeignKey(t *testing.T) {
	s := newTestSQLite(t)
	err := s.AddRejectedSourceID(context.Background(), "no-such-job", "familysearch", "X", "")
	assert.Error(t, err)
}

func TestSQLiteStore_ClosedDB(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.CreateJob(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: insert job")
}

// stubRows yields vals and then reports err from Err.
type stubRows struct {
	vals   []int
	err    error
	closed bool
}

func (r *stubRows) Next() bool { return len(r.vals) > 0 }

func (r *stubRows) Scan(dest ...any) error {
	*(dest[0].(*int)) = r.vals[0]
	r.vals = r.vals[1:]
	return nil
}

func (r *stubRows) Err() error   { return r.err }
func (r *stubRows) Close() error { r.closed = true; return nil }

func TestScanPositions(t *testing.T) {
	tests := []struct {
		name    string
		rows    *stubRows
		want    []int
		wantErr string
	}{
		{name: "drains rows", rows: &stubRows{vals: []int{2, 4, 5}}, want: []int{2, 4, 5}},
		{name: "iteration error", rows: &stubRows{vals: []int{2}, err: errors.New("connection reset")}, wantErr: "list subtree iterate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scanPositions(tt.rows)
			assert.True(t, tt.rows.closed)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
