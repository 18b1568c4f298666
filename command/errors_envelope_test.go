package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
)

func TestProcessDeliveryCommand_NilProcessorReturnsRichError(t *testing.T) {
	var cmd *ProcessDeliveryCommand
	err := cmd.Execute(context.Background(), ProcessDeliveryMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.IngestErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.IngestErrorInternal, rich.TextCode)
	}
}

func TestRedrivePendingCommand_NilRedriverReturnsRichError(t *testing.T) {
	cmd := NewRedrivePendingCommand(nil)
	err := cmd.Execute(context.Background(), RedrivePendingMessage{BatchSize: 10})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
