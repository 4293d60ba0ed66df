package migrate

import "fmt"

// Registry pairs a schema's current version with its migrations. The config
// file uses the package-level [Config]; the ledger builds its own registry
// because its legacy import depends on runtime settings.
type Registry struct {
	// CurrentVersion is the version documents are upgraded to.
	CurrentVersion int
	// Migrations is exported so tests can swap the list.
	Migrations []Migration
}

// Register appends m. It panics on a duplicate version, which is always a
// programming error.
func (r *Registry) Register(m Migration) {
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (%q)", m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a document at fileVersion must be upgraded.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return NeedsMigration(fileVersion, r.CurrentVersion, r.Migrations)
}

// Run upgrades data from fromVersion using the registered migrations.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	return Run(data, fromVersion, r.Migrations)
}

// Config is the migration registry for config.toml.
var Config = &Registry{CurrentVersion: 1}
