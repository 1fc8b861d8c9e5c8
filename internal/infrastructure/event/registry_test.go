package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tripdesk/backend/internal/domain/shared"
)

type stubHandler struct {
	eventTypes []string
}

func newStubHandler(eventTypes ...string) *stubHandler {
	return &stubHandler{eventTypes: eventTypes}
}

func (h *stubHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	return nil
}

func (h *stubHandler) EventTypes() []string {
	return h.eventTypes
}

func TestHandlerRegistry_RegisterSpecificTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newStubHandler("invoice.issued", "invoice.voided")

	registry.Register(handler, "invoice.issued", "invoice.voided")

	assert.Equal(t, []shared.EventHandler{handler}, registry.GetHandlers("invoice.issued"))
	assert.Equal(t, []shared.EventHandler{handler}, registry.GetHandlers("invoice.voided"))
	assert.Empty(t, registry.GetHandlers("receipt.recorded"))
}

func TestHandlerRegistry_RegisterWildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newStubHandler()

	registry.Register(handler)

	assert.Len(t, registry.GetHandlers("invoice.issued"), 1)
	assert.Len(t, registry.GetHandlers("credit_note.applied"), 1)
}

func TestHandlerRegistry_SpecificBeforeWildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	specific := newStubHandler("invoice.issued")
	wildcard := newStubHandler()

	registry.Register(specific, "invoice.issued")
	registry.Register(wildcard)

	handlers := registry.GetHandlers("invoice.issued")
	assert.Equal(t, []shared.EventHandler{specific, wildcard}, handlers)

	handlers = registry.GetHandlers("quotation.expired")
	assert.Equal(t, []shared.EventHandler{wildcard}, handlers)
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	keep := newStubHandler("receipt.recorded")
	drop := newStubHandler("receipt.recorded")

	registry.Register(keep, "receipt.recorded")
	registry.Register(drop, "receipt.recorded")
	assert.Len(t, registry.GetHandlers("receipt.recorded"), 2)

	registry.Unregister(drop)

	assert.Equal(t, []shared.EventHandler{keep}, registry.GetHandlers("receipt.recorded"))
}

func TestHandlerRegistry_UnregisterWildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	wildcard := newStubHandler()

	registry.Register(wildcard)
	assert.Len(t, registry.GetHandlers("invoice.issued"), 1)

	registry.Unregister(wildcard)
	assert.Empty(t, registry.GetHandlers("invoice.issued"))
}
