package mirror

import (
	"bytes"
	"testing"

	"github.com/ppiankov/toolgate/internal/signing"
)

func testSigner(t *testing.T) signing.Signer {
	t.Helper()
	s, err := signing.NewHMAC(bytes.Repeat([]byte{1}, signing.MinKeyLen))
	if err != nil {
		t.Fatal(err)
	}
	return s
}
