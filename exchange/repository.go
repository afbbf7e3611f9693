package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"exchangeflow/registry"
)

// Repository persists data exchanges keyed by id.
type Repository interface {
	Create(ctx context.Context, d DataExchange) (DataExchange, error)
	GetByID(ctx context.Context, id string) (DataExchange, error)
	List(ctx context.Context) ([]DataExchange, error)
	Update(ctx context.Context, id string, patch Patch) (DataExchange, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed exchange repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const exchangeColumns = `id::text, provider_endpoint, consumer_endpoint, resources, purpose_id, contract,
		status, provider_params, data_processing, payload, created_at, updated_at`

// Create inserts a new exchange. ID, timestamps and status must already be set.
func (r *PGRepository) Create(ctx context.Context, d DataExchange) (DataExchange, error) {
	resources, providerParams, dataProcessing, err := encodeDocuments(d.Resources, d.ProviderParams, d.DataProcessing)
	if err != nil {
		return DataExchange{}, err
	}

	const insertSQL = `
		INSERT INTO data_exchanges (id, provider_endpoint, consumer_endpoint, resources, purpose_id, contract,
			status, provider_params, data_processing, payload, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4::jsonb, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12)
		RETURNING ` + exchangeColumns

	created, err := scanExchange(r.pool.QueryRow(ctx, insertSQL,
		d.ID,
		nullable(d.ProviderEndpoint),
		nullable(d.ConsumerEndpoint),
		resources,
		d.PurposeID,
		d.Contract,
		string(d.Status),
		providerParams,
		dataProcessing,
		d.Payload,
		d.CreatedAt,
		d.UpdatedAt,
	))
	if err != nil {
		return DataExchange{}, fmt.Errorf("exchange: insert: %w", err)
	}
	return created, nil
}

// GetByID fetches one exchange.
func (r *PGRepository) GetByID(ctx context.Context, id string) (DataExchange, error) {
	const selectSQL = `SELECT ` + exchangeColumns + ` FROM data_exchanges WHERE id = $1::uuid`

	d, err := scanExchange(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if isMissing(err) {
			return DataExchange{}, ErrNotFound
		}
		return DataExchange{}, fmt.Errorf("exchange: get by id: %w", err)
	}
	return d, nil
}

// List returns every exchange, newest first.
func (r *PGRepository) List(ctx context.Context) ([]DataExchange, error) {
	const query = `SELECT ` + exchangeColumns + ` FROM data_exchanges ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("exchange: list: %w", err)
	}
	defer rows.Close()

	out := []DataExchange{}
	for rows.Next() {
		d, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("exchange: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exchange: iterate: %w", err)
	}
	return out, nil
}

// Update merges the non-nil patch fields in a single statement; the last writer wins.
func (r *PGRepository) Update(ctx context.Context, id string, patch Patch) (DataExchange, error) {
	var (
		status                                    *string
		resources, providerParams, dataProcessing []byte
		updatedAt                                 *time.Time
		err                                       error
	)
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	if patch.Resources != nil {
		if resources, err = json.Marshal(toStoredResources(patch.Resources)); err != nil {
			return DataExchange{}, fmt.Errorf("exchange: marshal resources: %w", err)
		}
	}
	if patch.ProviderParams != nil {
		if providerParams, err = json.Marshal(patch.ProviderParams); err != nil {
			return DataExchange{}, fmt.Errorf("exchange: marshal provider params: %w", err)
		}
	}
	if patch.DataProcessing != nil {
		if dataProcessing, err = json.Marshal(patch.DataProcessing); err != nil {
			return DataExchange{}, fmt.Errorf("exchange: marshal data processing: %w", err)
		}
	}
	if !patch.UpdatedAt.IsZero() {
		updatedAt = &patch.UpdatedAt
	}

	const updateSQL = `
		UPDATE data_exchanges
		SET status          = COALESCE($2, status),
		    payload         = COALESCE($3, payload),
		    resources       = COALESCE($4::jsonb, resources),
		    purpose_id      = COALESCE($5, purpose_id),
		    provider_params = COALESCE($6::jsonb, provider_params),
		    data_processing = COALESCE($7::jsonb, data_processing),
		    updated_at      = COALESCE($8, now())
		WHERE id = $1::uuid
		RETURNING ` + exchangeColumns

	d, err := scanExchange(r.pool.QueryRow(ctx, updateSQL,
		id, status, patch.Payload, resources, patch.PurposeID, providerParams, dataProcessing, updatedAt,
	))
	if err != nil {
		if isMissing(err) {
			return DataExchange{}, ErrNotFound
		}
		return DataExchange{}, fmt.Errorf("exchange: update: %w", err)
	}
	return d, nil
}

// storedResource is the jsonb shape of a mapped resource.
type storedResource struct {
	ServiceOffering string          `json:"serviceOffering"`
	Resource        string          `json:"resource"`
	Params          registry.Params `json:"params,omitempty"`
}

func toStoredResources(in []MappedResource) []storedResource {
	out := make([]storedResource, 0, len(in))
	for _, m := range in {
		out = append(out, storedResource(m))
	}
	return out
}

func fromStoredResources(in []storedResource) []MappedResource {
	out := make([]MappedResource, 0, len(in))
	for _, s := range in {
		out = append(out, MappedResource(s))
	}
	return out
}

func encodeDocuments(resources []MappedResource, params registry.Params, dp registry.DataProcessing) ([]byte, []byte, []byte, error) {
	resBytes, err := json.Marshal(toStoredResources(resources))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("exchange: marshal resources: %w", err)
	}
	if params == nil {
		params = registry.Params{}
	}
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("exchange: marshal provider params: %w", err)
	}
	dpBytes, err := json.Marshal(dp)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("exchange: marshal data processing: %w", err)
	}
	return resBytes, paramBytes, dpBytes, nil
}

func scanExchange(row pgx.Row) (DataExchange, error) {
	var (
		d                                         DataExchange
		providerEndpoint, consumerEndpoint        *string
		status                                    string
		resources, providerParams, dataProcessing []byte
	)
	err := row.Scan(
		&d.ID,
		&providerEndpoint,
		&consumerEndpoint,
		&resources,
		&d.PurposeID,
		&d.Contract,
		&status,
		&providerParams,
		&dataProcessing,
		&d.Payload,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return DataExchange{}, err
	}

	if providerEndpoint != nil {
		d.ProviderEndpoint = *providerEndpoint
	}
	if consumerEndpoint != nil {
		d.ConsumerEndpoint = *consumerEndpoint
	}
	d.Status = Status(status)

	var stored []storedResource
	if err := json.Unmarshal(resources, &stored); err != nil {
		return DataExchange{}, fmt.Errorf("decode resources: %w", err)
	}
	d.Resources = fromStoredResources(stored)
	if err := json.Unmarshal(providerParams, &d.ProviderParams); err != nil {
		return DataExchange{}, fmt.Errorf("decode provider params: %w", err)
	}
	if err := json.Unmarshal(dataProcessing, &d.DataProcessing); err != nil {
		return DataExchange{}, fmt.Errorf("decode data processing: %w", err)
	}
	return d, nil
}

// isMissing treats both absent rows and malformed uuids as not found.
func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
