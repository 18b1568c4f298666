package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IngestErrorBadInput        = "INGEST_BAD_INPUT"
	IngestErrorUnauthorized    = "INGEST_UNAUTHORIZED"
	IngestErrorNotFound        = "INGEST_NOT_FOUND"
	IngestErrorConflict        = "INGEST_CONFLICT"
	IngestErrorDomainRejected  = "INGEST_DOMAIN_REJECTED"
	IngestErrorOperationFailed = "INGEST_OPERATION_FAILED"
	IngestErrorInternal        = "INGEST_INTERNAL_ERROR"
)

func IngestErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIngestErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "secret"):
		return newIngestError(err.Error(), goerrors.CategoryAuth, IngestErrorUnauthorized)
	case strings.Contains(msg, "not found"):
		return newIngestError(err.Error(), goerrors.CategoryNotFound, IngestErrorNotFound)
	case strings.Contains(msg, "version conflict"), strings.Contains(msg, "already claimed"):
		return newIngestError(err.Error(), goerrors.CategoryConflict, IngestErrorConflict)
	case strings.Contains(msg, "rejected"), strings.Contains(msg, "unknown event type"):
		return newIngestError(err.Error(), goerrors.CategoryOperation, IngestErrorDomainRejected)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newIngestError(err.Error(), goerrors.CategoryBadInput, IngestErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIngestErrorEnvelope(mapped)
}

func newIngestError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIngestErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIngestErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = ingestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIngestTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIngestTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IngestErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IngestErrorUnauthorized
	case goerrors.CategoryNotFound:
		return IngestErrorNotFound
	case goerrors.CategoryConflict:
		return IngestErrorConflict
	case goerrors.CategoryOperation:
		return IngestErrorOperationFailed
	default:
		return IngestErrorInternal
	}
}

func ingestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
