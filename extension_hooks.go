package ingest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-ingest/dispatch"
	"github.com/goliatone/go-ingest/identity"
	"github.com/goliatone/go-ingest/webhooks"
)

// ProviderBinding pairs a verification template with the identity descriptor
// for the same provider surface.
type ProviderBinding struct {
	Template   webhooks.ProviderTemplate
	Descriptor identity.Descriptor
}

// ProviderPack is a named bundle of provider bindings, registered once and
// applied when the service is assembled.
type ProviderPack struct {
	Name     string
	Bindings []ProviderBinding
}

// TransitionPack is a named bundle of event-type transitions layered on top
// of the built-in ones.
type TransitionPack struct {
	Name        string
	Transitions map[string]dispatch.TransitionFunc
}

type providerRegistry interface {
	register(template webhooks.ProviderTemplate, descriptor identity.Descriptor) error
}

// ExtensionHooks collects provider and transition packs contributed by
// downstream modules before the service is built.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks   map[string]ProviderPack
	transitionPacks map[string]TransitionPack
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks:   map[string]ProviderPack{},
		transitionPacks: map[string]TransitionPack{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("ingest: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("ingest: provider pack name is required")
	}
	if len(pack.Bindings) == 0 {
		return fmt.Errorf("ingest: provider pack %q has no bindings", name)
	}

	normalized := ProviderPack{
		Name:     name,
		Bindings: append([]ProviderBinding(nil), pack.Bindings...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("ingest: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterTransitionPack(pack TransitionPack) error {
	if h == nil {
		return fmt.Errorf("ingest: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("ingest: transition pack name is required")
	}
	if len(pack.Transitions) == 0 {
		return fmt.Errorf("ingest: transition pack %q has no transitions", name)
	}
	for eventType, fn := range pack.Transitions {
		if strings.TrimSpace(eventType) == "" {
			return fmt.Errorf("ingest: transition pack %q has an empty event type", name)
		}
		if fn == nil {
			return fmt.Errorf("ingest: transition pack %q has a nil transition for %q", name, eventType)
		}
	}

	normalized := TransitionPack{
		Name:        name,
		Transitions: make(map[string]dispatch.TransitionFunc, len(pack.Transitions)),
	}
	for eventType, fn := range pack.Transitions {
		normalized.Transitions[eventType] = fn
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.transitionPacks[name]; exists {
		return fmt.Errorf("ingest: transition pack %q already registered", name)
	}
	h.transitionPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) ApplyProviderPacks(registry providerRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("ingest: provider registry is required")
	}
	for _, pack := range h.ProviderPacks() {
		for _, binding := range pack.Bindings {
			if err := registry.register(binding.Template, binding.Descriptor); err != nil {
				return fmt.Errorf("ingest: provider pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ApplyTransitionPacks(dispatcher *dispatch.Dispatcher) error {
	if h == nil {
		return nil
	}
	if dispatcher == nil {
		return fmt.Errorf("ingest: dispatcher is required")
	}
	for _, pack := range h.TransitionPacks() {
		eventTypes := make([]string, 0, len(pack.Transitions))
		for eventType := range pack.Transitions {
			eventTypes = append(eventTypes, eventType)
		}
		sort.Strings(eventTypes)
		for _, eventType := range eventTypes {
			if err := dispatcher.Register(eventType, pack.Transitions[eventType]); err != nil {
				return fmt.Errorf("ingest: transition pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:     pack.Name,
			Bindings: append([]ProviderBinding(nil), pack.Bindings...),
		})
	}
	return out
}

func (h *ExtensionHooks) TransitionPacks() []TransitionPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.transitionPacks))
	for name := range h.transitionPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TransitionPack, 0, len(names))
	for _, name := range names {
		pack := h.transitionPacks[name]
		copied := TransitionPack{
			Name:        pack.Name,
			Transitions: make(map[string]dispatch.TransitionFunc, len(pack.Transitions)),
		}
		for eventType, fn := range pack.Transitions {
			copied.Transitions[eventType] = fn
		}
		out = append(out, copied)
	}
	return out
}
