package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialSchemaCoversEngineTables(t *testing.T) {
	tables := []string{
		"certificate_authorities",
		"external_certificate_authorities",
		"internal_certificate_authorities",
		"certificates",
		"certificate_bodies",
		"certificate_secrets",
		"certificate_profiles",
		"app_connections",
	}

	joined := strings.Join(initialSchemaQueries, "\n")
	for _, table := range tables {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}

	assert.Contains(t, joined, "idx_ca_project_name")
	assert.Contains(t, joined, "idx_cert_ca_serial")
}
