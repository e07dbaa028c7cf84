package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	internaldb "github.com/eargollo/archiver/internal/db"
	"github.com/eargollo/archiver/internal/store"
)

// mustOpenStore opens a temp file SQLite database with the full schema applied.
func mustOpenStore(tb testing.TB) *store.Store {
	tb.Helper()
	db, err := internaldb.Open(filepath.Join(tb.TempDir(), "test.db"))
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	if err := internaldb.RunMigrations(db); err != nil {
		db.Close()
		tb.Fatalf("run migrations: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return store.New(db)
}

// mustCreateProfile creates a profile and returns its ID.
func mustCreateProfile(tb testing.TB, s *store.Store, name string) int64 {
	tb.Helper()
	p, err := s.CreateProfile(context.Background(), name)
	if err != nil {
		tb.Fatalf("create profile %q: %v", name, err)
	}
	return p.ID
}

// writeFiles creates one file per name→content entry under dir and returns
// their paths in the order of names.
func writeFiles(tb testing.TB, dir string, names []string, contents map[string]string) []string {
	tb.Helper()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(contents[n]), 0o644); err != nil {
			tb.Fatalf("write %q: %v", p, err)
		}
		paths = append(paths, p)
	}
	return paths
}

// fakeStore is a ProfileStore whose InsertFile can be made to fail or block.
type fakeStore struct {
	insertErr error
	gate      chan struct{} // when non-nil, InsertFile waits for a receive
	inserted  []string
}

func (f *fakeStore) InsertFile(ctx context.Context, profileID int64, fileName, digest string) (store.FileRecord, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.insertErr != nil {
		return store.FileRecord{}, f.insertErr
	}
	f.inserted = append(f.inserted, fileName)
	return store.FileRecord{ID: int64(len(f.inserted)), FileName: fileName, Digest: digest, ProfileID: profileID}, nil
}

func (f *fakeStore) GetProfile(ctx context.Context, id int64) (store.Profile, error) {
	if id != 1 {
		return store.Profile{}, store.ErrNotFound
	}
	return store.Profile{ID: 1, Name: "fake"}, nil
}

var errDiskGone = errors.New("disk I/O error")

// fixedDigest returns a digest function that reports the path as its digest.
func fixedDigest(path string) (string, int64, error) {
	return "digest:" + path, 1, nil
}
