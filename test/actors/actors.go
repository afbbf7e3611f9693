package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"exchangeflow/exchange"
	"exchangeflow/registry"
)

// Stress-created exchanges carry this provider param so oracles can tell them apart.
var stressParams = registry.Params{{"reporter": "stress"}}

// Creator keeps inserting PENDING exchanges for the same contract/purpose pair.
// Nothing deduplicates them; every insert must yield its own record.
func Creator(ctx context.Context, repo exchange.Repository, contract, purpose string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		now := time.Now().UTC()
		d := exchange.DataExchange{
			ID:             uuid.NewString(),
			Resources:      []exchange.MappedResource{{ServiceOffering: "so-stress", Resource: fmt.Sprintf("r%d", rand.Intn(4))}},
			PurposeID:      purpose,
			Contract:       contract,
			Status:         exchange.StatusPending,
			ProviderParams: stressParams,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if rand.Intn(2) == 0 {
			d.ProviderEndpoint = "https://provider.stress/"
		} else {
			d.ConsumerEndpoint = "https://consumer.stress/"
		}
		if _, err := repo.Create(ctx, d); err != nil && !isTransient(err) {
			return fmt.Errorf("creator insert: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Forger tries to write rows that break the record invariants straight through SQL.
// The schema must refuse every one of them.
func Forger(ctx context.Context, pool *pgxpool.Pool, contract string, stop <-chan struct{}) error {
	forged := []string{
		`INSERT INTO data_exchanges (id, provider_endpoint, consumer_endpoint, resources, purpose_id, contract)
         VALUES ($1, 'https://p/', 'https://q/', '[{"resource":"r1"}]', 'pu', $2)`,
		`INSERT INTO data_exchanges (id, resources, purpose_id, contract)
         VALUES ($1, '[{"resource":"r1"}]', 'pu', $2)`,
		`INSERT INTO data_exchanges (id, provider_endpoint, resources, purpose_id, contract)
         VALUES ($1, 'https://p/', '[]', 'pu', $2)`,
		`INSERT INTO data_exchanges (id, provider_endpoint, resources, purpose_id, contract, status)
         VALUES ($1, 'https://p/', '[{"resource":"r1"}]', 'pu', $2, 'DONE')`,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, forged[rand.Intn(len(forged))], uuid.NewString(), contract)
		if err == nil {
			return fmt.Errorf("forger: invariant-breaking row accepted")
		}
		var pgErr *pgconn.PgError
		if !(errors.As(err, &pgErr) && pgErr.Code == "23514") && !isTransient(err) { // check_violation
			return fmt.Errorf("forger insert: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(30)) * time.Millisecond)
	}
}

// Reporter races success and error reports from both sides against random exchanges.
func Reporter(ctx context.Context, pool *pgxpool.Pool, statuses *exchange.StatusService, stop <-chan struct{}) error {
	origins := []string{"provider", "consumer", "infrastructure"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id string
		err := pool.QueryRow(ctx, `SELECT id::text FROM data_exchanges ORDER BY random() LIMIT 1`).Scan(&id)
		if err == nil {
			origin := origins[rand.Intn(len(origins))]
			if rand.Intn(2) == 0 {
				_, err = statuses.ReportSuccess(ctx, id, origin)
			} else {
				payload := fmt.Sprintf(`{"reason":"stress %d"}`, rand.Intn(100))
				_, err = statuses.ReportError(ctx, id, origin, &payload)
			}
			if err != nil && !errors.Is(err, exchange.ErrNotFound) && !isTransient(err) {
				return fmt.Errorf("reporter: %w", err)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(25)) * time.Millisecond)
	}
}

// Admin overwrites the status of random exchanges back to PENDING.
func Admin(ctx context.Context, pool *pgxpool.Pool, statuses *exchange.StatusService, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id string
		if err := pool.QueryRow(ctx, `SELECT id::text FROM data_exchanges ORDER BY random() LIMIT 1`).Scan(&id); err == nil {
			pending := exchange.StatusPending
			if _, err := statuses.Update(ctx, id, exchange.Patch{Status: &pending}); err != nil && !isTransient(err) {
				return fmt.Errorf("admin: %w", err)
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(50)) * time.Millisecond)
	}
}

// isTransient reports errors caused by chaos or shutdown rather than by the code under test.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "57P01" // admin_shutdown from pg_terminate_backend
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") || strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "connection reset")
}
