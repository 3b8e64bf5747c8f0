// Package database provides SQLite connectivity for Caseta Bridge.
//
// This package manages:
//   - The database connection (WAL mode, busy timeout, single writer)
//   - Forward-only schema migrations embedded into the binary
//   - Health checks used at startup and by the HTTP API
//
// The only persistent state is the accessory set: one row per exposed
// accessory with its CBOR-encoded context blob. Everything else is derived
// from the hubs at runtime.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql.
package database
