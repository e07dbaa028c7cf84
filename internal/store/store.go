// Package store is the persistence gateway for profiles and file records.
//
// A Store wraps one database handle and serialises every operation behind a
// mutex. The lock is taken for exactly one statement (plus its row scan) and
// released before the method returns; no *sql.Rows or *sql.Tx escapes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/eargollo/archiver/internal/metrics"
)

var (
	// ErrForeignKey is returned when a file record references an unknown profile.
	ErrForeignKey = errors.New("profile does not exist")
	// ErrConstraint is returned for any other constraint violation, including
	// an empty profile name.
	ErrConstraint = errors.New("constraint violation")
	// ErrNotFound is returned when a lookup by id matches no row.
	ErrNotFound = errors.New("not found")
)

// Profile is a named grouping of cataloged files.
type Profile struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileRecord describes one ingested file. FileName is the path exactly as
// supplied to the ingestion batch.
type FileRecord struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"file_name"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ProfileID int64     `json:"profile_id"`
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// New wraps db. The caller keeps ownership of db and closes it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// do runs fn while holding the store lock and records its duration.
func (s *Store) do(op string, fn func(db *sql.DB) error) error {
	start := time.Now()
	s.mu.Lock()
	err := fn(s.db)
	s.mu.Unlock()
	metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues(op).Inc()
	}
	return err
}

// CreateProfile inserts a profile named name and returns it. Names are not
// unique; blank names are rejected with ErrConstraint.
func (s *Store) CreateProfile(ctx context.Context, name string) (Profile, error) {
	if strings.TrimSpace(name) == "" {
		return Profile{}, fmt.Errorf("create profile: empty name: %w", ErrConstraint)
	}

	var p Profile
	err := s.do("create_profile", func(db *sql.DB) error {
		var created, updated timestamp
		err := db.QueryRowContext(ctx, `
			INSERT INTO profiles (profile_name)
			VALUES (?)
			RETURNING id, profile_name, created_at, updated_at`, name,
		).Scan(&p.ID, &p.Name, &created, &updated)
		p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
		return err
	})
	if err != nil {
		return Profile{}, fmt.Errorf("create profile %q: %w", name, classify(err))
	}
	return p, nil
}

// GetProfile returns the profile with id, or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, id int64) (Profile, error) {
	var p Profile
	err := s.do("get_profile", func(db *sql.DB) error {
		var created, updated timestamp
		err := db.QueryRowContext(ctx, `
			SELECT id, profile_name, created_at, updated_at
			FROM profiles WHERE id = ?`, id,
		).Scan(&p.ID, &p.Name, &created, &updated)
		p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %d: %w", id, err)
	}
	return p, nil
}

// ListProfiles returns every profile in insertion order.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	profiles := []Profile{}
	err := s.do("list_profiles", func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, profile_name, created_at, updated_at
			FROM profiles ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Profile
			var created, updated timestamp
			if err := rows.Scan(&p.ID, &p.Name, &created, &updated); err != nil {
				return err
			}
			p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
			profiles = append(profiles, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// InsertFile records one file under profileID. It returns ErrForeignKey if
// the profile does not exist. Re-inserting the same name or digest creates a
// new row.
func (s *Store) InsertFile(ctx context.Context, profileID int64, fileName, digest string) (FileRecord, error) {
	var f FileRecord
	err := s.do("insert_file", func(db *sql.DB) error {
		var created, updated timestamp
		err := db.QueryRowContext(ctx, `
			INSERT INTO files (file_name, sha256, profile_id)
			VALUES (?, ?, ?)
			RETURNING id, file_name, sha256, created_at, updated_at, profile_id`,
			fileName, digest, profileID,
		).Scan(&f.ID, &f.FileName, &f.Digest, &created, &updated, &f.ProfileID)
		f.CreatedAt, f.UpdatedAt = created.Time, updated.Time
		return err
	})
	if err != nil {
		return FileRecord{}, fmt.Errorf("insert file %q: %w", fileName, classify(err))
	}
	return f, nil
}

// ListFiles returns every record of profileID in insertion order.
func (s *Store) ListFiles(ctx context.Context, profileID int64) ([]FileRecord, error) {
	files := []FileRecord{}
	err := s.do("list_files", func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, file_name, sha256, created_at, updated_at, profile_id
			FROM files WHERE profile_id = ? ORDER BY id`, profileID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f FileRecord
			var created, updated timestamp
			if err := rows.Scan(&f.ID, &f.FileName, &f.Digest, &created, &updated, &f.ProfileID); err != nil {
				return err
			}
			f.CreatedAt, f.UpdatedAt = created.Time, updated.Time
			files = append(files, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list files of profile %d: %w", profileID, err)
	}
	return files, nil
}

// CountFiles returns the number of records stored under profileID.
func (s *Store) CountFiles(ctx context.Context, profileID int64) (int64, error) {
	var n int64
	err := s.do("count_files", func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM files WHERE profile_id = ?`, profileID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count files of profile %d: %w", profileID, err)
	}
	return n, nil
}

// classify maps SQLite constraint failures onto the package sentinels while
// keeping the driver error in the chain.
func classify(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	code := se.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		strings.Contains(se.Error(), "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", ErrForeignKey, err)
	case code&0xff == sqlite3.SQLITE_CONSTRAINT:
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}
