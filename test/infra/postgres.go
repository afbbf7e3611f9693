package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// ErrUnavailable reports that no PostgreSQL could be located for a test run.
var ErrUnavailable = errors.New("infra: no postgres available")

// Postgres is a database handed to a test. Shared databases belong to someone
// else and must only be touched inside an isolated schema.
type Postgres struct {
	DSN    string
	Shared bool

	container *postgres.PostgresContainer
	adminDSN  string
	dbName    string
}

// Acquire resolves a database for a test run, in order: overrideDSN,
// DATABASE_URL or STRESS_TEST_PG_DSN (shared), a fresh database created
// through PG_ADMIN_DSN, then a postgres:16 container when docker answers.
func Acquire(ctx context.Context, overrideDSN string) (*Postgres, error) {
	for _, dsn := range []string{overrideDSN, os.Getenv("DATABASE_URL"), os.Getenv("STRESS_TEST_PG_DSN")} {
		if dsn != "" {
			return &Postgres{DSN: dsn, Shared: true}, nil
		}
	}
	if admin := os.Getenv("PG_ADMIN_DSN"); admin != "" {
		return createDatabase(ctx, admin)
	}
	if dockerAvailable(ctx) {
		return startContainer(ctx)
	}
	return nil, ErrUnavailable
}

// Release drops whatever Acquire created. Shared databases are left alone.
func (p *Postgres) Release(ctx context.Context) error {
	if p == nil {
		return nil
	}
	switch {
	case p.container != nil:
		return p.container.Terminate(ctx)
	case p.dbName != "":
		conn, err := pgx.Connect(ctx, p.adminDSN)
		if err != nil {
			return fmt.Errorf("infra: connect admin: %w", err)
		}
		defer conn.Close(ctx)
		_, err = conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{p.dbName}.Sanitize()+" WITH (FORCE)")
		return err
	}
	return nil
}

func createDatabase(ctx context.Context, adminDSN string) (*Postgres, error) {
	u, err := url.Parse(adminDSN)
	if err != nil {
		return nil, fmt.Errorf("infra: parse PG_ADMIN_DSN: %w", err)
	}
	conn, err := pgx.Connect(ctx, adminDSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer conn.Close(ctx)

	name := fmt.Sprintf("exchangeflow_test_%d", time.Now().UnixNano())
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return nil, fmt.Errorf("infra: create database: %w", err)
	}

	target := *u
	target.Path = "/" + name
	return &Postgres{DSN: target.String(), adminDSN: adminDSN, dbName: name}, nil
}

func startContainer(ctx context.Context) (*Postgres, error) {
	c, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("exchangeflow"),
		postgres.WithUsername("exchangeflow"),
		postgres.WithPassword("exchangeflow"),
	)
	if err != nil {
		return nil, fmt.Errorf("infra: start postgres container: %w", err)
	}
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("infra: container dsn: %w", err)
	}
	return &Postgres{DSN: dsn, container: c}, nil
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

// String returns the DSN with its password hidden.
func (p *Postgres) String() string {
	u, err := url.Parse(p.DSN)
	if err != nil {
		return "postgres"
	}
	return u.Redacted()
}
