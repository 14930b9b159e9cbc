package mirror

import (
	"context"
	"io"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/redact"
)

// RedactedSink scrubs resource, reason and metadata before handing an
// entry to the wrapped sink. The mirrored signature no longer verifies
// against the scrubbed fields; integrity checks run on the ledger.
type RedactedSink struct {
	next audit.Sink
	r    *redact.Redactor
}

// Redacted wraps next. A nil redactor uses redact.New().
func Redacted(next audit.Sink, r *redact.Redactor) *RedactedSink {
	if r == nil {
		r = redact.New()
	}
	return &RedactedSink{next: next, r: r}
}

func (s *RedactedSink) Publish(ctx context.Context, e audit.Entry) error {
	e.Resource = s.r.String(e.Resource)
	e.Reason = s.r.String(e.Reason)
	e.Metadata = s.r.Map(e.Metadata)
	return s.next.Publish(ctx, e)
}

// Close closes the wrapped sink when it is closable.
func (s *RedactedSink) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
