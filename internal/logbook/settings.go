package logbook

import (
	"context"
	"encoding/json"
)

// GetOrCreateSettings returns the project's settings, inserting a default
// row first if absent. INSERT ... ON CONFLICT DO NOTHING makes concurrent
// first-time initialization safe.
func (p *PG) GetOrCreateSettings(ctx context.Context, projectKey string) (*Settings, error) {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO settings (project_key, team_write_enabled, policy_json, updated_by)
		VALUES ($1, true, '{}'::jsonb, 'system')
		ON CONFLICT (project_key) DO NOTHING
	`, projectKey)
	if err != nil {
		return nil, wrapErr(err)
	}

	var s Settings
	var policyRaw []byte
	row := p.pool.QueryRow(ctx, `
		SELECT project_key, team_write_enabled, policy_json, updated_by, updated_at
		FROM settings WHERE project_key = $1
	`, projectKey)
	if err := row.Scan(&s.ProjectKey, &s.TeamWriteEnabled, &policyRaw, &s.UpdatedBy, &s.UpdatedAt); err != nil {
		return nil, wrapErr(err)
	}
	if len(policyRaw) > 0 {
		if err := json.Unmarshal(policyRaw, &s.PolicyJSON); err != nil {
			return nil, &QueryError{Err: err}
		}
	}
	return &s, nil
}

// UpsertSettings applies a partial update: nil teamWriteEnabled or nil
// policyJSON leaves that field unchanged.
func (p *PG) UpsertSettings(ctx context.Context, projectKey string, teamWriteEnabled *bool, policyJSON map[string]any, updatedBy string) (*Settings, error) {
	if _, err := p.GetOrCreateSettings(ctx, projectKey); err != nil {
		return nil, err
	}

	var policyRaw []byte
	var err error
	if policyJSON != nil {
		policyRaw, err = marshalJSON(policyJSON)
		if err != nil {
			return nil, err
		}
	}

	_, err = p.pool.Exec(ctx, `
		UPDATE settings
		SET team_write_enabled = COALESCE($2, team_write_enabled),
		    policy_json = COALESCE($3, policy_json),
		    updated_by = $4,
		    updated_at = now()
		WHERE project_key = $1
	`, projectKey, teamWriteEnabled, nullIfEmpty(policyRaw), updatedBy)
	if err != nil {
		return nil, wrapErr(err)
	}

	return p.GetOrCreateSettings(ctx, projectKey)
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
