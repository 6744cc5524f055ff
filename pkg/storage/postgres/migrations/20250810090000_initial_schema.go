package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func Register20250810090000InitialSchema() {
	goose.AddMigrationContext(upInitialSchema, downInitialSchema)
}

var initialSchemaQueries = []string{
	`CREATE TABLE IF NOT EXISTS certificate_authorities (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		type TEXT NOT NULL,
		enable_direct_issuance BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ca_project_name ON certificate_authorities (project_id, name);`,
	`CREATE TABLE IF NOT EXISTS external_certificate_authorities (
		ca_id TEXT PRIMARY KEY,
		app_connection_id TEXT NOT NULL,
		type TEXT NOT NULL,
		configuration TEXT,
		encrypted_credentials BYTEA
	);`,
	`CREATE TABLE IF NOT EXISTS internal_certificate_authorities (
		ca_id TEXT PRIMARY KEY,
		encrypted_private_key BYTEA NOT NULL,
		certificate TEXT,
		certificate_chain TEXT,
		key_algorithm TEXT,
		serial_number TEXT,
		not_before TIMESTAMPTZ,
		not_after TIMESTAMPTZ
	);`,
	`CREATE TABLE IF NOT EXISTS certificates (
		id TEXT PRIMARY KEY,
		ca_id TEXT NOT NULL,
		profile_id TEXT,
		project_id TEXT,
		status TEXT NOT NULL,
		friendly_name TEXT,
		common_name TEXT,
		alt_names TEXT,
		serial_number TEXT NOT NULL,
		not_before TIMESTAMPTZ,
		not_after TIMESTAMPTZ,
		key_usages TEXT,
		extended_key_usages TEXT,
		key_algorithm TEXT,
		signature_algorithm TEXT,
		revocation_timestamp TIMESTAMPTZ,
		revocation_reason TEXT,
		renewed_from_certificate_id TEXT,
		renewed_by_certificate_id TEXT,
		renew_before_days INTEGER,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cert_ca_serial ON certificates (ca_id, serial_number);`,
	`CREATE TABLE IF NOT EXISTS certificate_bodies (
		cert_id TEXT PRIMARY KEY,
		encrypted_certificate BYTEA NOT NULL,
		encrypted_certificate_chain BYTEA
	);`,
	`CREATE TABLE IF NOT EXISTS certificate_secrets (
		cert_id TEXT PRIMARY KEY,
		encrypted_private_key BYTEA NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS certificate_profiles (
		id TEXT PRIMARY KEY,
		project_id TEXT,
		ca_id TEXT,
		name TEXT,
		api_config_auto_renew BOOLEAN,
		api_config_renew_before_days INTEGER,
		api_config_ttl TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`,
	`CREATE TABLE IF NOT EXISTS app_connections (
		id TEXT PRIMARY KEY,
		name TEXT,
		app TEXT,
		project_id TEXT,
		encrypted_credentials BYTEA,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`,
}

func upInitialSchema(ctx context.Context, tx *sql.Tx) error {
	for _, query := range initialSchemaQueries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

func downInitialSchema(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		"DROP TABLE IF EXISTS app_connections;",
		"DROP TABLE IF EXISTS certificate_profiles;",
		"DROP TABLE IF EXISTS certificate_secrets;",
		"DROP TABLE IF EXISTS certificate_bodies;",
		"DROP TABLE IF EXISTS certificates;",
		"DROP TABLE IF EXISTS internal_certificate_authorities;",
		"DROP TABLE IF EXISTS external_certificate_authorities;",
		"DROP TABLE IF EXISTS certificate_authorities;",
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}
