// Package internal documents the EventDesk server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses and routing
// - domain: business logic for users, events and participations
// - storage: Postgres repositories and embedded migrations
// - auth, audit, config, email, metrics, telemetry, uploads: shared infrastructure
// - fault, sanitize, validation: error kinds and input hygiene
//
// Code in internal/ is not meant for external import.
package internal
