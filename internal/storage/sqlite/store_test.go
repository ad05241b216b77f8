package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kelter-antunes/chromara/internal/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "media.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("  "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenTwiceKeepsMigrationsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "media.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := first.Index(context.Background(), entry("a.jpg")); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()
	n, err := second.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func entry(name string) storage.Entry {
	return storage.Entry{
		DisplayName:  name,
		MIMEType:     "image/jpeg",
		RelativePath: "Pictures/Chromara/",
		Size:         1024,
		TakenAt:      time.Date(2026, time.February, 22, 16, 40, 0, 0, time.UTC),
	}
}

func TestIndexGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	in := entry("Chromara_20260222_164000.jpg")
	uri, err := store.Index(context.Background(), in)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if !strings.HasPrefix(uri, ContentPrefix) {
		t.Fatalf("uri = %q, want prefix %q", uri, ContentPrefix)
	}

	got, err := store.Get(context.Background(), uri)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DisplayName != in.DisplayName || got.RelativePath != in.RelativePath || got.Size != in.Size {
		t.Fatalf("entry = %+v, want %+v", got, in)
	}
	if !got.TakenAt.Equal(in.TakenAt) {
		t.Fatalf("taken_at = %v, want %v", got.TakenAt, in.TakenAt)
	}
}

func TestIndexUpsertKeepsReference(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	first, err := store.Index(context.Background(), entry("same.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	again := entry("same.jpg")
	again.Size = 2048
	second, err := store.Index(context.Background(), again)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("reference changed on overwrite: %q -> %q", first, second)
	}
	got, err := store.Get(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != 2048 {
		t.Fatalf("size = %d, want refreshed 2048", got.Size)
	}

	raw := entry("same.jpg")
	raw.RelativePath = "Pictures/Chromara/RAW/"
	third, err := store.Index(context.Background(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Fatal("different folders must get distinct references")
	}
}

func TestIndexConcurrentSaves(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	const rounds = 50
	errs := make(chan error, 2*rounds)
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		jpg := entry(fmt.Sprintf("Chromara_%03d.jpg", i))
		dng := entry(fmt.Sprintf("Chromara_%03d.dng", i))
		dng.MIMEType = "image/x-adobe-dng"
		dng.RelativePath = "Pictures/Chromara/RAW/"
		for _, e := range []storage.Entry{jpg, dng} {
			wg.Add(1)
			go func(e storage.Entry) {
				defer wg.Done()
				if _, err := store.Index(context.Background(), e); err != nil {
					errs <- err
				}
			}(e)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent index: %v", err)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2*rounds {
		t.Fatalf("count = %d, want %d", n, 2*rounds)
	}
}

func TestIndexSharedFileAcrossStores(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "media.db")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	b, err := Open(path)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		for _, s := range []*Store{a, b} {
			wg.Add(1)
			go func(s *Store, name string) {
				defer wg.Done()
				if _, err := s.Index(context.Background(), entry(name)); err != nil {
					errs <- err
				}
			}(s, fmt.Sprintf("Chromara_%p_%02d.jpg", s, i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("index with a second handle open: %v", err)
	}
}

func TestIndexValidation(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	cases := []struct {
		name string
		e    storage.Entry
	}{
		{"no_name", storage.Entry{RelativePath: "Pictures/Chromara/"}},
		{"no_path", storage.Entry{DisplayName: "x.jpg"}},
	}
	for _, tc := range cases {
		if _, err := store.Index(context.Background(), tc.e); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestGetErrors(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.Get(context.Background(), ContentPrefix+"999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(context.Background(), "file:///tmp/x.jpg"); err == nil {
		t.Fatal("expected invalid reference error")
	}
}

func TestNilStoreNotConfigured(t *testing.T) {
	t.Parallel()

	var store *Store
	if _, err := store.Index(context.Background(), entry("x.jpg")); err == nil {
		t.Fatal("expected not configured error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Index(ctx, entry("x.jpg")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestExtractUp(t *testing.T) {
	t.Parallel()

	content := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	if got := strings.TrimSpace(extractUp(content)); got != "CREATE TABLE a (x INT);" {
		t.Fatalf("extractUp = %q", got)
	}
	if got := extractUp("SELECT 1;"); got != "SELECT 1;" {
		t.Fatalf("no markers = %q", got)
	}
}

func TestGalleryWithSQLiteIndex(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	g := storage.NewGallery(storage.NewFileSink(t.TempDir(), "Chromara"), store)
	ref, err := g.Save(context.Background(), storage.Asset{
		Data: []byte("jpeg"), Kind: storage.KindJPEG, Subfolder: "Chromara", TakenAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(context.Background(), ref.URI)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DisplayName != ref.Name || got.MIMEType != "image/jpeg" {
		t.Fatalf("entry = %+v, ref = %+v", got, ref)
	}
}
