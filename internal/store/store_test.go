package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "github.com/eargollo/archiver/internal/db"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := internaldb.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, internaldb.RunMigrations(db))
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestCreateProfile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProfile(ctx, "Books")
	require.NoError(t, err)
	assert.Greater(t, p.ID, int64(0))
	assert.Equal(t, "Books", p.Name)
	assert.False(t, p.CreatedAt.IsZero())
	assert.False(t, p.UpdatedAt.IsZero())

	// Names are not unique.
	dup, err := s.CreateProfile(ctx, "Books")
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, dup.ID)
}

func TestCreateProfile_EmptyName(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.CreateProfile(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrConstraint)

	profiles, err := s.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestListProfiles_InsertionOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	names := []string{"Books", "Music", "Archive"}
	for _, n := range names {
		_, err := s.CreateProfile(ctx, n)
		require.NoError(t, err)
	}

	profiles, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, len(names))
	for i, p := range profiles {
		assert.Equal(t, names[i], p.Name)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetProfile(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertFile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProfile(ctx, "Books")
	require.NoError(t, err)

	rec, err := s.InsertFile(ctx, p.ID, "book1.txt", "deadbeef")
	require.NoError(t, err)
	assert.Greater(t, rec.ID, int64(0))
	assert.Equal(t, "book1.txt", rec.FileName)
	assert.Equal(t, "deadbeef", rec.Digest)
	assert.Equal(t, p.ID, rec.ProfileID)

	files, err := s.ListFiles(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, rec.ID, files[0].ID)
	assert.Equal(t, rec.FileName, files[0].FileName)
	assert.Equal(t, rec.Digest, files[0].Digest)
	assert.True(t, rec.CreatedAt.Equal(files[0].CreatedAt))
}

func TestInsertFile_UnknownProfile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.InsertFile(ctx, 999, "orphan.txt", "cafe")
	assert.ErrorIs(t, err, ErrForeignKey)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n))
	assert.Zero(t, n, "no row may exist for an unknown profile")
}

// TestInsertFile_NoDedup documents that the same path and digest can be
// recorded more than once.
func TestInsertFile_NoDedup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProfile(ctx, "Books")
	require.NoError(t, err)

	a, err := s.InsertFile(ctx, p.ID, "same.txt", "abc123")
	require.NoError(t, err)
	b, err := s.InsertFile(ctx, p.ID, "same.txt", "abc123")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	files, err := s.ListFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestListFiles_ScopedToProfile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	books, err := s.CreateProfile(ctx, "Books")
	require.NoError(t, err)
	music, err := s.CreateProfile(ctx, "Music")
	require.NoError(t, err)

	_, err = s.InsertFile(ctx, books.ID, "b.txt", "01")
	require.NoError(t, err)
	_, err = s.InsertFile(ctx, music.ID, "m.mp3", "02")
	require.NoError(t, err)
	_, err = s.InsertFile(ctx, music.ID, "n.mp3", "03")
	require.NoError(t, err)

	files, err := s.ListFiles(ctx, music.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "m.mp3", files[0].FileName)
	assert.Equal(t, "n.mp3", files[1].FileName)

	n, err := s.CountFiles(ctx, books.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	empty, err := s.ListFiles(ctx, 12345)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

// TestConcurrentAccess interleaves writers and readers on the shared handle.
func TestConcurrentAccess(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProfile(ctx, "Busy")
	require.NoError(t, err)

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter*2)
	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.InsertFile(ctx, p.ID, fmt.Sprintf("w%d/f%d", w, i), "00"); err != nil {
					errs <- err
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.ListFiles(ctx, p.ID); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent op: %v", err)
	}

	n, err := s.CountFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), n)
}
