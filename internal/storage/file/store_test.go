package file

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/ternarybob/arbor"
)

func newTestLocalStore(t *testing.T) (*LocalStore, func()) {
	tmpDir, err := ioutil.TempDir("", "blob-test")
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewLocalStore(tmpDir, arbor.NewLogger())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatal(err)
	}
	return store, func() { os.RemoveAll(tmpDir) }
}

func TestWriteReadRoundTrip(t *testing.T) {
	store, cleanup := newTestLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	ref, err := store.Write(ctx, "uploads/job-1.csv", []byte("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if ref != "uploads/job-1.csv" {
		t.Errorf("Expected ref unchanged, got %q", ref)
	}

	data, err := store.Read(ctx, ref)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("Round trip lost data: %q", data)
	}
}

func TestReadMissingIsNotRetried(t *testing.T) {
	store, cleanup := newTestLocalStore(t)
	defer cleanup()

	_, err := store.Read(context.Background(), "uploads/nope.csv")
	if err == nil {
		t.Fatal("Expected error reading missing blob")
	}
	if !os.IsNotExist(errUnwrapAll(err)) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestRejectsPathEscape(t *testing.T) {
	store, cleanup := newTestLocalStore(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := store.Read(ctx, "../outside"); err == nil {
		t.Error("Expected error for path escape on read")
	}
	if _, err := store.Write(ctx, "/abs/path", []byte("x")); err == nil {
		t.Error("Expected error for absolute reference on write")
	}
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	store, cleanup := newTestLocalStore(t)
	defer cleanup()

	if err := store.Delete(context.Background(), "uploads/nope.csv"); err != nil {
		t.Errorf("Expected no error deleting missing blob, got %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	store, cleanup := newTestLocalStore(t)
	defer cleanup()

	ctx := context.Background()
	for _, ref := range []string{"results/a.json", "results/b.json", "uploads/c.csv"} {
		if _, err := store.Write(ctx, ref, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}

	refs, err := store.List(ctx, "results")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("Expected 2 results refs, got %d: %v", len(refs), refs)
	}
}

// errUnwrapAll walks the wrap chain to the root error
func errUnwrapAll(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}
