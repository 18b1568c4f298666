package identity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

// Descriptor names the minimal payload fields one provider uses to carry the
// event identity. Extraction never assumes full schema conformance: unknown
// fields are ignored, only the named fields must be present.
type Descriptor struct {
	Provider  string
	IDField   string
	TypeField string
}

func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Provider) == "" {
		return fmt.Errorf("identity: provider is required")
	}
	if strings.TrimSpace(d.IDField) == "" {
		return fmt.Errorf("identity: id field is required")
	}
	return nil
}

// Extract derives the provider-scoped event identity and the event_type tag
// from a verified payload. An absent or empty event id fails extraction: a
// payload that cannot be deduplicated must be rejected, not accepted.
func (d Descriptor) Extract(req core.InboundRequest) (core.EventIdentity, string, error) {
	if err := d.Validate(); err != nil {
		return core.EventIdentity{}, "", err
	}

	fields, err := decodeFields(req.Body)
	if err != nil {
		return core.EventIdentity{}, "", err
	}

	eventID := stringField(fields, d.IDField)
	if eventID == "" {
		return core.EventIdentity{}, "", fmt.Errorf(
			"identity: %s field is required for dedupe", strings.TrimSpace(d.IDField),
		)
	}

	eventType := ""
	if strings.TrimSpace(d.TypeField) != "" {
		eventType = stringField(fields, d.TypeField)
	}

	identity := core.EventIdentity{
		Provider: strings.TrimSpace(d.Provider),
		EventID:  eventID,
	}
	if err := identity.Validate(); err != nil {
		return core.EventIdentity{}, "", err
	}
	return identity, eventType, nil
}

// NewDescriptorFromConfig builds a descriptor from provider configuration,
// defaulting to the common "id"/"type" field names.
func NewDescriptorFromConfig(cfg core.ProviderConfig) Descriptor {
	idField := strings.TrimSpace(cfg.IDField)
	if idField == "" {
		idField = "id"
	}
	typeField := strings.TrimSpace(cfg.TypeField)
	if typeField == "" {
		typeField = "type"
	}
	return Descriptor{
		Provider:  strings.TrimSpace(cfg.ID),
		IDField:   idField,
		TypeField: typeField,
	}
}

// ChainExtractors tries each extractor in order and returns the first
// identity that resolves. Providers that moved the event id between payload
// versions register the new descriptor first and the legacy one after it.
func ChainExtractors(extractors ...core.IdentityExtractor) core.IdentityExtractor {
	list := append([]core.IdentityExtractor(nil), extractors...)
	return extractorChain(list)
}

type extractorChain []core.IdentityExtractor

func (c extractorChain) Extract(req core.InboundRequest) (core.EventIdentity, string, error) {
	var lastErr error
	for _, extractor := range c {
		if extractor == nil {
			continue
		}
		identity, eventType, err := extractor.Extract(req)
		if err == nil && identity.EventID != "" {
			return identity, eventType, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return core.EventIdentity{}, "", lastErr
	}
	return core.EventIdentity{}, "", fmt.Errorf("identity: event id is required for dedupe")
}

// DecodePayload parses the body into the loose field map transition
// functions consume. Callers must only invoke it after verification.
func DecodePayload(body []byte) (map[string]any, error) {
	return decodeFields(body)
}

func decodeFields(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("identity: payload body is required")
	}
	fields := map[string]any{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("identity: decode payload: %w", err)
	}
	return fields, nil
}

func stringField(fields map[string]any, path string) string {
	current := any(fields)
	for _, segment := range strings.Split(strings.TrimSpace(path), ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = asMap[segment]
		if !ok {
			return ""
		}
	}
	value, ok := current.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

var _ core.IdentityExtractor = Descriptor{}
