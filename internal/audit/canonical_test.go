package audit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ppiankov/toolgate/internal/model"
)

func TestCanonicalExcludesSignature(t *testing.T) {
	e := testEntry("alice", model.Approved)
	e.ID = 1
	e.Timestamp = "2026-03-01T12:00:00.000Z"

	a, err := Canonical(e)
	if err != nil {
		t.Fatal(err)
	}
	e.Signature = "hmac-sha256:abc"
	b, err := Canonical(e)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("signature must not affect canonical form")
	}
	if strings.Contains(string(a), "signature") {
		t.Fatalf("canonical form contains signature: %s", a)
	}
}

func TestCanonicalSortsKeys(t *testing.T) {
	e := testEntry("alice", model.Approved)
	e.Metadata = map[string]string{"zeta": "1", "alpha": "2"}
	c, err := Canonical(e)
	if err != nil {
		t.Fatal(err)
	}
	s := string(c)
	if !strings.HasPrefix(s, `{"action":"execute","action_id":`) {
		t.Fatalf("expected sorted keys, got %s", s)
	}
	if strings.Index(s, `"alpha"`) > strings.Index(s, `"zeta"`) {
		t.Fatalf("expected sorted metadata keys, got %s", s)
	}
}

func TestSigningInputChainsPrevious(t *testing.T) {
	e := testEntry("alice", model.Approved)
	a, _ := SigningInput(e, GenesisSignature)
	b, _ := SigningInput(e, "hmac-sha256:other")
	if bytes.Equal(a, b) {
		t.Fatal("previous signature must change the signing input")
	}
	if !bytes.HasSuffix(a, []byte(GenesisSignature)) {
		t.Fatal("signing input must end with the previous signature")
	}
}
