// Package correlation is the single source of correlation ids: one
// corr-<16 hex> value generated once per HTTP request and threaded
// explicitly through every handler, audit row, and outbox row it touches.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Format matches every id this package emits. Exported so callers (and
// tests) can assert P2 without duplicating the pattern.
var Format = regexp.MustCompile(`^corr-[a-f0-9]{16}$`)

type contextKey struct{}

// New generates a fresh correlation id. It is called in exactly one place
// in production wiring: the HTTP correlation middleware
// (httpserver.Correlation), ahead of the RPC front-end.
func New() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken; there
		// is no safe fallback that preserves the format guarantee.
		panic(fmt.Errorf("correlation: reading random bytes: %w", err))
	}
	return "corr-" + hex.EncodeToString(b[:])
}

// Builder constructs correlation ids for contexts that already carry one
// (error paths, handlers) and enforces the single-source rule in Strict
// mode: it refuses to mint a new id when none was supplied, which is how
// tests catch a second generation point creeping into the codebase.
type Builder struct {
	Strict bool
}

// For returns id unchanged if non-empty. If id is empty and the builder is
// not strict, it mints one (used only by ambient callers like background
// log lines outside the request path); in strict mode it panics.
func (b Builder) For(id string) string {
	if id != "" {
		return id
	}
	if b.Strict {
		panic("correlation: strict builder received no id to propagate")
	}
	return New()
}

// NewContext returns a context carrying correlation id id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the correlation id stored by NewContext, or "" if
// none is present.
func FromContext(ctx context.Context) string {
	v, _ := ctx.Value(contextKey{}).(string)
	return v
}
