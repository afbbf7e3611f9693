package chaos

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend kills a random backend of the current database now and
// then, and counts the attempts in killed.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, every time.Duration, killed *atomic.Int64, stop <-chan struct{}) {
	if every <= 0 {
		every = 2 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) != 0 {
				continue
			}
			tag, err := pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
                WHERE datname = current_database() AND pid <> pg_backend_pid()
                ORDER BY random() LIMIT 1`)
			if err == nil && killed != nil && tag.RowsAffected() > 0 {
				killed.Add(1)
			}
		}
	}
}
