package audit

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical returns the RFC 8785 encoding of e without its signature.
// Entries holding invalid UTF-8 have no canonical form.
func Canonical(e Entry) ([]byte, error) {
	e.Signature = ""
	if err := e.checkText(); err != nil {
		return nil, fmt.Errorf("audit: canonicalize entry: %w", err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal entry: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize entry: %w", err)
	}
	return out, nil
}

// SigningInput is the byte string signed for e: its canonical form
// followed by the previous entry's signature.
func SigningInput(e Entry, prevSignature string) ([]byte, error) {
	c, err := Canonical(e)
	if err != nil {
		return nil, err
	}
	return append(c, prevSignature...), nil
}
