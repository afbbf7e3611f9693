package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_counterpart",
			SQL: `SELECT id FROM data_exchanges
                  WHERE (provider_endpoint IS NULL) = (consumer_endpoint IS NULL)`,
		},
		{
			Name: "O2_known_status",
			SQL: `SELECT id, status FROM data_exchanges
                  WHERE status NOT IN ('PENDING','PROVIDER_EXPORT_ERROR','CONSUMER_IMPORT_ERROR',
                                       'UNDEFINED_ERROR','EXPORT_SUCCESS','IMPORT_SUCCESS')`,
		},
		{
			Name: "O3_resources_present",
			SQL: `SELECT id FROM data_exchanges
                  WHERE jsonb_typeof(resources) <> 'array' OR jsonb_array_length(resources) = 0`,
		},
		{
			Name: "O4_updated_not_before_created",
			SQL:  `SELECT id, created_at, updated_at FROM data_exchanges WHERE updated_at < created_at`,
		},
		{
			Name: "O5_error_report_keeps_payload",
			SQL: `SELECT id FROM data_exchanges
                  WHERE status IN ('PROVIDER_EXPORT_ERROR','CONSUMER_IMPORT_ERROR','UNDEFINED_ERROR')
                    AND payload IS NULL AND provider_params @> '[{"reporter":"stress"}]'::jsonb`,
		},
		{
			Name: "O6_provider_params_list",
			SQL:  `SELECT id FROM data_exchanges WHERE jsonb_typeof(provider_params) <> 'array'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
