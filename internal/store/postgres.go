package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	listConfigurationsSQL  = `SELECT document FROM ccl_configurations ORDER BY country, version`
	getConfigurationSQL    = `SELECT document FROM ccl_configurations WHERE key = $1`
	upsertConfigurationSQL = `INSERT INTO ccl_configurations (key, country, version, identifier, document, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (key) DO UPDATE SET
	identifier = EXCLUDED.identifier,
	document   = EXCLUDED.document,
	updated_at = now()`
	deleteConfigurationSQL = `DELETE FROM ccl_configurations WHERE key = $1`
)

// PostgresStore keeps one JSONB document per configuration key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) ListConfigurations(ctx context.Context) ([]rules.Configuration, error) {
	rows, err := p.pool.Query(ctx, listConfigurationsSQL)
	if err != nil {
		return nil, err
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}

	configs := make([]rules.Configuration, 0, len(docs))
	for _, doc := range docs {
		c, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	// Text ordering of the version column is not semver ordering.
	sortConfigurations(configs)
	return configs, nil
}

func (p *PostgresStore) GetConfiguration(ctx context.Context, country, version string) (*rules.Configuration, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, getConfigurationSQL, Key(country, version)).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c, err := decodeDocument(doc)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) UpsertConfiguration(ctx context.Context, c rules.Configuration) error {
	if err := rules.Validate(c); err != nil {
		return err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, upsertConfigurationSQL, Key(c.Country, c.Version), c.Country, c.Version, c.Identifier, doc)
	return err
}

func (p *PostgresStore) DeleteConfiguration(ctx context.Context, country, version string) error {
	_, err := p.pool.Exec(ctx, deleteConfigurationSQL, Key(country, version))
	return err
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func decodeDocument(doc []byte) (rules.Configuration, error) {
	var c rules.Configuration
	if err := json.Unmarshal(doc, &c); err != nil {
		return rules.Configuration{}, fmt.Errorf("%w: %v", rules.ErrInvalidConfiguration, err)
	}
	return c, nil
}
