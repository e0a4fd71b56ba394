package logbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is the production Port implementation, backed by a single Postgres
// schema (the Gateway has one project per deployment; there is no
// per-tenant schema switching the way the teacher's incident-ops store
// does — see DESIGN.md).
type PG struct {
	pool *pgxpool.Pool
}

// New wraps pool as a Logbook Port.
func New(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling json: %w", err)
	}
	return b, nil
}

func unmarshalEnvelope(b []byte) (EvidenceEnvelope, error) {
	var env EvidenceEnvelope
	if len(b) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshaling evidence envelope: %w", err)
	}
	return env, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return &QueryError{Err: err}
	}
	return &DbConnectionError{Err: err}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
