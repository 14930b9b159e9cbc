package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/toolgate/internal/model"
)

func FuzzVerifyFile(f *testing.F) {
	dir := f.TempDir()
	path := filepath.Join(dir, "valid.jsonl")
	store, err := OpenJSONL(path)
	if err != nil {
		f.Fatal(err)
	}
	signer := testSigner(f)
	l, err := Open(context.Background(), store, signer)
	if err != nil {
		f.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l.Append(context.Background(), testEntry("fuzz", model.Approved))
	}
	l.Close()
	valid, _ := os.ReadFile(path)

	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte(`{"not":"a valid entry"}` + "\n"))
	f.Add([]byte(`not json`))

	f.Fuzz(func(t *testing.T, data []byte) {
		p := filepath.Join(t.TempDir(), "fuzz.jsonl")
		os.WriteFile(p, data, 0o600)

		r := VerifyFile(p, signer)
		if r.TamperedCount > r.Entries {
			t.Fatalf("tampered %d exceeds entries %d", r.TamperedCount, r.Entries)
		}
		if r.Valid && r.TamperedCount != 0 {
			t.Fatal("valid report with tampered entries")
		}
	})
}
