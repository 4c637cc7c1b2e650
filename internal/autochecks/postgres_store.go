package autochecks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the table layout PostgresStore reads from.
const Schema = `
CREATE TABLE IF NOT EXISTS autochecks (
	host_name      TEXT    NOT NULL,
	position       INTEGER NOT NULL,
	plugin         TEXT    NOT NULL,
	item           TEXT    NOT NULL DEFAULT '',
	parameters     JSONB,
	service_labels JSONB,
	PRIMARY KEY (host_name, position)
)`

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed autochecks store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Autochecks implements Store. Rows are returned in position order.
func (s *PostgresStore) Autochecks(ctx context.Context, hostName string) ([]Entry, error) {
	query := `
		SELECT plugin, item, parameters, service_labels
		FROM autochecks
		WHERE host_name = $1
		ORDER BY position
	`

	rows, err := s.db.Query(ctx, query, hostName)
	if err != nil {
		return nil, fmt.Errorf("query autochecks of %s: %w", hostName, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry         Entry
			rawParameters []byte
			rawLabels     []byte
		)
		if err := rows.Scan(&entry.Plugin, &entry.Item, &rawParameters, &rawLabels); err != nil {
			return nil, fmt.Errorf("scan autocheck of %s: %w", hostName, err)
		}
		if len(rawParameters) > 0 {
			if err := json.Unmarshal(rawParameters, &entry.Parameters); err != nil {
				return nil, fmt.Errorf("decode parameters of %s/%s: %w", hostName, entry.Plugin, err)
			}
		}
		if len(rawLabels) > 0 {
			if err := json.Unmarshal(rawLabels, &entry.ServiceLabels); err != nil {
				return nil, fmt.Errorf("decode service labels of %s/%s: %w", hostName, entry.Plugin, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read autochecks of %s: %w", hostName, err)
	}

	return entries, nil
}

// Ping checks if the database connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
