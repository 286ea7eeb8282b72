package memorystore

import (
	"context"
	"time"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// PruneOlderThan deletes every record committed before cutoff, the
// session-wide purge path from the record lifecycle, and returns how many
// rows were removed. Used by the periodic retention janitor.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `delete from memories where created_at < $1`
	res, err := s.pool.Execute(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sageerr.Wrap(sageerr.KindDatabaseConnection, "rows affected after prune", err)
	}
	return n, nil
}
