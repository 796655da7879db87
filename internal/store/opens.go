package store

import (
	"context"
	"fmt"
)

// InsertOpen appends a tracking pixel open event for a message.
func (s *Store) InsertOpen(ctx context.Context, event OpenEvent) error {
	const q = `
INSERT INTO open_tracking (message_id, ip_address, user_agent)
VALUES ($1, $2, $3);
`
	if _, err := s.pool.Exec(ctx, q, event.MessageID, event.IPAddress, event.UserAgent); err != nil {
		return fmt.Errorf("insert open event: %w", err)
	}
	return nil
}
