// Package core defines the domain model and contracts shared across the
// ingestion engine: event identities, idempotency records and their status
// machine, subscription state, and the store/verifier/dispatcher interfaces
// the other packages implement.
package core
