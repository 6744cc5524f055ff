package migrations

// RegisterGoMigrations registers every migration with goose. Registration
// order does not matter, goose orders by version.
func RegisterGoMigrations() {
	Register20250810090000InitialSchema()
}
