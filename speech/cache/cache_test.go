package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quillreader/quill/speech/wave"
)

func newTestStore(t *testing.T, maxBytes int64) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, maxBytes, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return s, dir
}

// TestPutGetRoundTrip tests that cached bytes survive a put/get cycle and
// still decode to the audio that was encoded.
func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, 0)

	cases := []struct {
		name    string
		samples []float64
	}{
		{"empty", nil},
		{"tone", []float64{0.1, -0.1, 0.5, -0.5, 1, -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := wave.Encode(tc.samples, 22050)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			key := Key("b", "c", "v", 1.0, 0, tc.name)
			if _, err := s.Put(key, data); err != nil {
				t.Fatalf("Put error: %v", err)
			}

			path, ok := s.Get(key)
			if !ok {
				t.Fatal("Get missed a freshly put key")
			}
			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read cached file: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Error("cached bytes differ from what was put")
			}
			samples, rate, err := wave.Decode(got)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if rate != 22050 || len(samples) != len(tc.samples) {
				t.Errorf("decoded %d samples at %d Hz, want %d at 22050", len(samples), rate, len(tc.samples))
			}
		})
	}
}

// TestGetMiss tests that an unknown key is a plain miss.
func TestGetMiss(t *testing.T) {
	s, _ := newTestStore(t, 0)
	if _, ok := s.Get("nope"); ok {
		t.Error("Get returned a hit for an unknown key")
	}
}

// TestGetRepairsMissingFile tests the lazy self-repair path: an entry whose
// file vanished is purged and reported as a miss, not an error.
func TestGetRepairsMissingFile(t *testing.T) {
	s, dir := newTestStore(t, 0)

	key := Key("b", "c", "v", 1.0, 0, "text")
	path, err := s.Put(key, []byte("audio"))
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	if _, ok := s.Get(key); ok {
		t.Fatal("Get returned a hit for an entry with no backing file")
	}
	st := s.Stats()
	if st.FileCount != 0 || st.TotalBytes != 0 {
		t.Errorf("stats after repair = %+v, want empty", st)
	}

	// Repair persists: a reload sees the purged manifest.
	s2, err := New(dir, 0, nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if _, ok := s2.Get(key); ok {
		t.Error("reloaded store resurrected the purged entry")
	}
}

// TestDuplicatePut tests that putting the same key twice does not leak files
// or double-count size.
func TestDuplicatePut(t *testing.T) {
	s, dir := newTestStore(t, 0)

	key := Key("b", "c", "v", 1.0, 0, "text")
	if _, err := s.Put(key, make([]byte, 100)); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, err := s.Put(key, make([]byte, 40)); err != nil {
		t.Fatalf("second Put error: %v", err)
	}

	st := s.Stats()
	if st.FileCount != 1 {
		t.Errorf("file count = %d, want 1", st.FileCount)
	}
	if st.TotalBytes != 40 {
		t.Errorf("total bytes = %d, want 40", st.TotalBytes)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	// One audio file plus the manifest.
	if len(files) != 2 {
		t.Errorf("cache dir holds %d files, want 2", len(files))
	}
}

// TestLRUEviction tests that overflowing the budget evicts the entry with
// the oldest access, not the oldest insertion.
func TestLRUEviction(t *testing.T) {
	s, _ := newTestStore(t, 250)

	// Insert A then B, but touch A after B so B becomes the LRU victim.
	if _, err := s.Put("keyA", make([]byte, 100)); err != nil {
		t.Fatalf("Put A error: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := s.Put("keyB", make([]byte, 100)); err != nil {
		t.Fatalf("Put B error: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, ok := s.Get("keyA"); !ok {
		t.Fatal("Get A missed")
	}
	time.Sleep(2 * time.Millisecond)

	// C overflows the 250-byte budget; B has the oldest access.
	if _, err := s.Put("keyC", make([]byte, 100)); err != nil {
		t.Fatalf("Put C error: %v", err)
	}

	if _, ok := s.Get("keyB"); ok {
		t.Error("least recently used entry B survived eviction")
	}
	if _, ok := s.Get("keyA"); !ok {
		t.Error("recently accessed entry A was evicted")
	}
	if _, ok := s.Get("keyC"); !ok {
		t.Error("just-inserted entry C was evicted")
	}
}

// TestEvictionBound tests the budget invariant over a sequence of puts:
// totalBytes never exceeds the budget while two or more entries remain.
func TestEvictionBound(t *testing.T) {
	s, _ := newTestStore(t, 300)

	sizes := []int{120, 120, 120, 50, 200, 290, 10}
	for i, n := range sizes {
		key := Key("b", "c", "v", 1.0, i, "chunk")
		if _, err := s.Put(key, make([]byte, n)); err != nil {
			t.Fatalf("Put %d error: %v", i, err)
		}
		st := s.Stats()
		if st.TotalBytes > 300 && st.FileCount > 1 {
			t.Fatalf("after put %d: %d bytes across %d entries exceeds budget", i, st.TotalBytes, st.FileCount)
		}
	}
}

// TestOversizedSingleEntry tests the undefined-but-safe edge case: an entry
// larger than the whole budget evicts everything else but is itself kept.
func TestOversizedSingleEntry(t *testing.T) {
	s, _ := newTestStore(t, 100)

	if _, err := s.Put("small", make([]byte, 50)); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, err := s.Put("huge", make([]byte, 500)); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	st := s.Stats()
	if st.FileCount != 1 {
		t.Fatalf("file count = %d, want 1 (only the oversized entry)", st.FileCount)
	}
	if _, ok := s.Get("huge"); !ok {
		t.Error("oversized entry was evicted")
	}
}

// TestManifestPersistence tests that entries and totals survive a restart.
func TestManifestPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 0, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	key := Key("b", "c", "v", 1.0, 0, "text")
	if _, err := s.Put(key, make([]byte, 64)); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	s2, err := New(dir, 0, nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if _, ok := s2.Get(key); !ok {
		t.Error("reloaded store lost a persisted entry")
	}
	st := s2.Stats()
	if st.TotalBytes != 64 || st.FileCount != 1 {
		t.Errorf("reloaded stats = %+v, want 64 bytes in 1 file", st)
	}
}

// TestCorruptManifest tests that an unreadable manifest degrades to an empty
// store instead of failing construction.
func TestCorruptManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, manifestName), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt manifest: %v", err)
	}

	s, err := New(dir, 0, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	st := s.Stats()
	if st.FileCount != 0 || st.TotalBytes != 0 {
		t.Errorf("stats = %+v, want empty store", st)
	}
}

// TestClear tests that Clear removes all files, reports freed bytes, and
// leaves an empty persisted manifest.
func TestClear(t *testing.T) {
	s, dir := newTestStore(t, 0)

	for i := 0; i < 3; i++ {
		key := Key("b", "c", "v", 1.0, i, "chunk")
		if _, err := s.Put(key, make([]byte, 100)); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}

	if freed := s.Clear(); freed != 300 {
		t.Errorf("Clear freed %d bytes, want 300", freed)
	}
	st := s.Stats()
	if st.FileCount != 0 || st.TotalBytes != 0 {
		t.Errorf("stats after clear = %+v, want empty", st)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(files) != 1 { // just the manifest
		t.Errorf("cache dir holds %d files after clear, want 1", len(files))
	}
}

// TestDefaultBudget tests that a non-positive budget falls back to the
// 500 MiB default.
func TestDefaultBudget(t *testing.T) {
	s, _ := newTestStore(t, 0)
	if got := s.Stats().MaxBytes; got != DefaultMaxBytes {
		t.Errorf("max bytes = %d, want %d", got, DefaultMaxBytes)
	}
}
