// Package storage persists subscriptions and, optionally, the per-destination
// "last announced" markers.
//
// Drivers:
//   - "sqlite": modernc.org/sqlite file database (default)
//   - "postgres": gorm over gorm.io/driver/postgres
//   - "memory": process-local maps, for tests and dry runs
//
// All drivers share the users_channels layout of the original bot database,
// so an existing channels.db is picked up and upgraded in place.
package storage
