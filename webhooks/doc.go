// Package webhooks verifies that an inbound callback genuinely originated
// from the claimed provider. Verification always runs over the raw,
// unparsed body bytes; any re-serialization before hashing invalidates the
// signature.
package webhooks
