package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/toolgate/internal/model"
)

// faultyFile wraps the ledger file and injects write, sync and truncate failures.
type faultyFile struct {
	*os.File
	shortWrite    bool
	syncFailures  int
	truncateFails bool
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.shortWrite {
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("no space left on device")
	}
	return f.File.Write(p)
}

func (f *faultyFile) Sync() error {
	if f.syncFailures > 0 {
		f.syncFailures--
		return errors.New("input/output error")
	}
	return f.File.Sync()
}

func (f *faultyFile) Truncate(size int64) error {
	if f.truncateFails {
		return errors.New("read-only file system")
	}
	return f.File.Truncate(size)
}

func openFaultyLedger(t *testing.T) (*Ledger, *faultyFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	store, err := OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	ff := &faultyFile{File: store.file.(*os.File)}
	store.file = ff
	l, err := Open(context.Background(), store, testSigner(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, ff, path
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return fi.Size()
}

func TestJSONLFailedAppendIsRolledBack(t *testing.T) {
	faults := map[string]func(*faultyFile){
		"short write": func(f *faultyFile) { f.shortWrite = true },
		"sync":        func(f *faultyFile) { f.syncFailures = 1 },
	}
	for name, arm := range faults {
		t.Run(name, func(t *testing.T) {
			l, ff, path := openFaultyLedger(t)
			ctx := context.Background()
			appendN(t, l, 1)
			before := fileSize(t, path)

			arm(ff)
			if _, err := l.Append(ctx, testEntry("bob", model.Approved)); err == nil {
				t.Fatal("expected append to fail")
			}
			if got := fileSize(t, path); got != before {
				t.Fatalf("expected file rolled back to %d bytes, got %d", before, got)
			}

			*ff = faultyFile{File: ff.File}
			e, err := l.Append(ctx, testEntry("bob", model.Approved))
			if err != nil {
				t.Fatal(err)
			}
			if e.ID != 2 {
				t.Fatalf("expected id 2 after rollback, got %d", e.ID)
			}
			if r := VerifyFile(path, testSigner(t)); !r.Valid || r.Entries != 2 {
				t.Fatalf("expected intact 2-entry file, got %+v", r)
			}
			if r := l.VerifyIntegrity(ctx); !r.Valid {
				t.Fatalf("expected valid ledger, got %+v", r)
			}
		})
	}
}

func TestJSONLFailedRollbackRefusesWrites(t *testing.T) {
	l, ff, path := openFaultyLedger(t)
	ctx := context.Background()
	appendN(t, l, 1)

	ff.shortWrite, ff.truncateFails = true, true
	if _, err := l.Append(ctx, testEntry("bob", model.Approved)); err == nil {
		t.Fatal("expected append to fail")
	}

	*ff = faultyFile{File: ff.File}
	if _, err := l.Append(ctx, testEntry("bob", model.Approved)); err == nil {
		t.Fatal("store with a torn tail must refuse further appends")
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 visible entry, got %d", l.Len())
	}
	if r := VerifyFile(path, testSigner(t)); r.Valid {
		t.Fatalf("torn tail must not verify, got %+v", r)
	}
}
