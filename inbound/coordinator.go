package inbound

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/identity"
)

// signatureHeaderProvider is implemented by verifiers that read a specific
// transport header, so auth failures can be audited with the presented value.
type signatureHeaderProvider interface {
	SignatureHeader() string
}

// Coordinator runs one delivery through verify, claim, dispatch, and commit.
// Every redelivery of an already applied event replays the stored result
// without touching domain state.
type Coordinator struct {
	Verifier     core.Verifier
	Extractor    core.IdentityExtractor
	Store        core.IdempotencyStore
	Dispatcher   core.Dispatcher
	AuthFailures core.AuthFailureSink
	Logger       core.Logger
	Metrics      core.MetricsRecorder

	ClaimLease time.Duration
	Retry      core.RetryConfig

	Now func() time.Time
}

// NewCoordinator wires a coordinator with the default lease and retry policy.
func NewCoordinator(
	verifier core.Verifier,
	extractor core.IdentityExtractor,
	store core.IdempotencyStore,
	dispatcher core.Dispatcher,
) *Coordinator {
	cfg := core.DefaultConfig()
	return &Coordinator{
		Verifier:   verifier,
		Extractor:  extractor,
		Store:      store,
		Dispatcher: dispatcher,
		ClaimLease: cfg.ClaimLease,
		Retry:      cfg.Retry,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Process handles one inbound delivery end to end. The returned result
// carries the transport status the caller should answer with; a non-nil
// error explains any non-2xx result.
func (c *Coordinator) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if c == nil || c.Extractor == nil || c.Store == nil || c.Dispatcher == nil {
		return core.InboundResult{}, inboundInternal("inbound: coordinator is not configured", nil)
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" {
		return core.InboundResult{
			StatusCode: http.StatusBadRequest,
		}, inboundBadInput("inbound: provider id is required", nil)
	}

	if c.Verifier != nil {
		if err := c.Verifier.Verify(ctx, req); err != nil {
			c.recordAuthFailure(ctx, req, err)
			c.count(ctx, req.ProviderID, "unauthorized")
			return core.InboundResult{
					Accepted:   false,
					StatusCode: http.StatusUnauthorized,
					Metadata: map[string]any{
						"provider_id": req.ProviderID,
						"rejected":    true,
					},
				}, inboundWrapError(
					err,
					goerrors.CategoryAuth,
					"inbound: signature verification failed",
					http.StatusUnauthorized,
					core.IngestErrorUnauthorized,
					map[string]any{"provider_id": req.ProviderID},
				)
		}
	}

	eventIdentity, eventType, err := c.Extractor.Extract(req)
	if err != nil {
		c.count(ctx, req.ProviderID, "bad_input")
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusBadRequest,
			}, inboundWrapError(
				err,
				goerrors.CategoryBadInput,
				"inbound: event identity extraction failed",
				http.StatusBadRequest,
				core.IngestErrorBadInput,
				map[string]any{"provider_id": req.ProviderID},
			)
	}

	claim, err := c.Store.Claim(ctx, core.ClaimInput{
		Identity:  eventIdentity,
		EventType: eventType,
		Payload:   req.Body,
		Lease:     c.claimLease(),
	})
	if err != nil {
		c.count(ctx, req.ProviderID, "claim_error")
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusInternalServerError,
			}, inboundWrapError(
				err,
				goerrors.CategoryInternal,
				"inbound: idempotency claim failed",
				http.StatusInternalServerError,
				core.IngestErrorInternal,
				identityMetadata(eventIdentity),
			)
	}

	switch claim.Outcome {
	case core.ClaimAlreadyApplied:
		c.count(ctx, req.ProviderID, "replayed")
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Replayed:   true,
			Metadata: map[string]any{
				"provider_id": eventIdentity.Provider,
				"event_id":    eventIdentity.EventID,
				"status":      string(core.RecordStatusApplied),
				"result":      cloneSummary(claim.Record.ResultSummary),
			},
		}, nil
	case core.ClaimAlreadyFailed:
		c.count(ctx, req.ProviderID, "already_failed")
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"provider_id": eventIdentity.Provider,
				"event_id":    eventIdentity.EventID,
				"status":      string(core.RecordStatusFailed),
				"will_retry":  false,
				"error":       claim.Record.LastError,
			},
		}, nil
	case core.ClaimAlreadyClaimed:
		c.count(ctx, req.ProviderID, "in_flight")
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusConflict,
				Metadata: map[string]any{
					"provider_id": eventIdentity.Provider,
					"event_id":    eventIdentity.EventID,
					"status":      string(core.RecordStatusClaimed),
				},
			}, inboundError(
				fmt.Sprintf("inbound: event %s is already being processed", eventIdentity.Key()),
				goerrors.CategoryConflict,
				http.StatusConflict,
				core.IngestErrorConflict,
				identityMetadata(eventIdentity),
			)
	}

	return c.processFresh(ctx, req, eventIdentity, eventType, claim.Record)
}

func (c *Coordinator) processFresh(
	ctx context.Context,
	req core.InboundRequest,
	eventIdentity core.EventIdentity,
	eventType string,
	record core.IdempotencyRecord,
) (core.InboundResult, error) {
	payload, err := identity.DecodePayload(req.Body)
	if err != nil {
		// The extractor already parsed the body, so this only trips on a
		// store that rewrote the payload.
		return c.rejectEvent(ctx, eventIdentity, fmt.Errorf("inbound: decode payload: %w", err))
	}

	outcome, err := c.Dispatcher.Apply(ctx, core.Event{
		Identity:   eventIdentity,
		Type:       eventType,
		Payload:    payload,
		RawBody:    req.Body,
		ReceivedAt: record.ReceivedAt,
	})
	if err == nil {
		if _, commitErr := c.Store.Commit(ctx, eventIdentity, core.RecordStatusApplied, outcome.Summary, nil); commitErr != nil {
			c.count(ctx, req.ProviderID, "commit_error")
			return core.InboundResult{
					Accepted:   false,
					StatusCode: http.StatusInternalServerError,
				}, inboundWrapError(
					commitErr,
					goerrors.CategoryInternal,
					"inbound: commit applied failed",
					http.StatusInternalServerError,
					core.IngestErrorInternal,
					identityMetadata(eventIdentity),
				)
		}
		c.count(ctx, req.ProviderID, "applied")
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"provider_id": eventIdentity.Provider,
				"event_id":    eventIdentity.EventID,
				"status":      string(core.RecordStatusApplied),
				"result":      cloneSummary(outcome.Summary),
			},
		}, nil
	}

	if errors.Is(err, core.ErrEventRejected) {
		return c.rejectEvent(ctx, eventIdentity, err)
	}

	return c.retryLater(ctx, req.ProviderID, record, err)
}

// rejectEvent commits a permanent failure. The delivery is answered 200 so
// the provider stops retrying something that can never apply.
func (c *Coordinator) rejectEvent(ctx context.Context, eventIdentity core.EventIdentity, cause error) (core.InboundResult, error) {
	if _, err := c.Store.Commit(ctx, eventIdentity, core.RecordStatusFailed, nil, cause); err != nil {
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusInternalServerError,
			}, inboundWrapError(
				err,
				goerrors.CategoryInternal,
				"inbound: commit failed state",
				http.StatusInternalServerError,
				core.IngestErrorInternal,
				identityMetadata(eventIdentity),
			)
	}
	c.count(ctx, eventIdentity.Provider, "rejected")
	c.logWarn("event rejected",
		"provider_id", eventIdentity.Provider,
		"event_id", eventIdentity.EventID,
		"error", cause,
	)
	return core.InboundResult{
		Accepted:   false,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"provider_id": eventIdentity.Provider,
			"event_id":    eventIdentity.EventID,
			"status":      string(core.RecordStatusFailed),
			"will_retry":  false,
		},
	}, nil
}

// retryLater records a transient failure. The record stays claimed with a
// backoff lease so the redriver picks it up, and the delivery is answered
// non-2xx so the provider may also retry on its own schedule.
func (c *Coordinator) retryLater(ctx context.Context, providerID string, claimed core.IdempotencyRecord, cause error) (core.InboundResult, error) {
	eventIdentity := claimed.Identity
	retry := c.retryConfig()
	nextAttemptAt := c.now().Add(backoffDelay(retry, claimed.AttemptCount))

	record, err := c.Store.RecordAttempt(ctx, eventIdentity, cause, nextAttemptAt)
	if err != nil {
		c.logWarn("record attempt failed",
			"provider_id", providerID,
			"event_id", eventIdentity.EventID,
			"error", err,
		)
	} else {
		// attempt_count counts executions including the one this call
		// schedules, so the budget lapses once it would pass MaxAttempts.
		if record.AttemptCount > retry.MaxAttempts {
			exhausted := fmt.Errorf("%w after %d attempts: %v",
				core.ErrRetryBudgetExhausted, record.AttemptCount-1, cause)
			return c.rejectEvent(ctx, eventIdentity, exhausted)
		}
	}

	c.count(ctx, providerID, "retried")
	return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusInternalServerError,
			Metadata: map[string]any{
				"provider_id":   eventIdentity.Provider,
				"event_id":      eventIdentity.EventID,
				"status":        string(core.RecordStatusClaimed),
				"will_retry":    true,
				"attempt_count": record.AttemptCount,
			},
		}, inboundWrapError(
			cause,
			goerrors.CategoryOperation,
			"inbound: event processing failed, will retry",
			http.StatusInternalServerError,
			core.IngestErrorOperationFailed,
			identityMetadata(eventIdentity),
		)
}

func (c *Coordinator) recordAuthFailure(ctx context.Context, req core.InboundRequest, cause error) {
	if c.AuthFailures == nil {
		return
	}
	digest := sha256.Sum256(req.Body)
	failure := core.AuthFailure{
		ProviderID: req.ProviderID,
		Reason:     cause.Error(),
		BodyDigest: hex.EncodeToString(digest[:]),
		OccurredAt: c.now(),
	}
	if provider, ok := c.Verifier.(signatureHeaderProvider); ok {
		failure.Signature = headerValue(req.Headers, provider.SignatureHeader())
	}
	if err := c.AuthFailures.Record(ctx, failure); err != nil {
		c.logWarn("auth failure audit write failed",
			"provider_id", req.ProviderID,
			"error", err,
		)
	}
}

func (c *Coordinator) claimLease() time.Duration {
	if c.ClaimLease > 0 {
		return c.ClaimLease
	}
	return core.DefaultConfig().ClaimLease
}

func (c *Coordinator) retryConfig() core.RetryConfig {
	retry := c.Retry
	defaults := core.DefaultConfig().Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaults.MaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaults.InitialBackoff
	}
	if retry.MaxBackoff <= 0 {
		retry.MaxBackoff = defaults.MaxBackoff
	}
	return retry
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Coordinator) count(ctx context.Context, providerID string, outcome string) {
	if c.Metrics == nil {
		return
	}
	c.Metrics.IncCounter(ctx, "ingest.process.total", 1, map[string]string{
		"provider_id": providerID,
		"outcome":     outcome,
	})
}

func (c *Coordinator) logWarn(message string, args ...any) {
	if c.Logger == nil {
		return
	}
	c.Logger.Warn(message, args...)
}

func identityMetadata(eventIdentity core.EventIdentity) map[string]any {
	return map[string]any{
		"provider_id": eventIdentity.Provider,
		"event_id":    eventIdentity.EventID,
	}
}

func cloneSummary(summary map[string]any) map[string]any {
	if summary == nil {
		return nil
	}
	out := make(map[string]any, len(summary))
	for key, value := range summary {
		out[key] = value
	}
	return out
}

func headerValue(headers map[string]string, name string) string {
	if len(headers) == 0 || strings.TrimSpace(name) == "" {
		return ""
	}
	if value, ok := headers[name]; ok {
		return strings.TrimSpace(value)
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
