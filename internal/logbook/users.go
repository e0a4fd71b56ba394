package logbook

import "context"

// CheckUserExists reports whether user_id has a users row.
func (p *PG) CheckUserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, wrapErr(err)
	}
	return exists, nil
}

// EnsureUser inserts a users row if absent, used only by
// unknown_actor_policy=auto_create.
func (p *PG) EnsureUser(ctx context.Context, userID, displayName string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (user_id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, displayName)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}
