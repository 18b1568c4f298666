// Package inbound coordinates the ingestion pipeline: signature
// verification, event identity extraction, the idempotency claim, dispatch,
// and the commit of the result. It also hosts the redriver that recovers
// claimed events whose lease lapsed and retries transient failures with a
// bounded exponential backoff.
package inbound
