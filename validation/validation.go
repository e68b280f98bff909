// Package validation validates the wire form of a durable.DurableEvent
// against a JSON Schema before it is allowed onto a stream, grounded on
// goadesign-goa-ai's registry/service.go, which compiles and validates
// tool payloads with the same github.com/santhosh-tekuri/jsonschema/v6
// compiler used here. It replaces a hand-rolled reflection-based
// validator with a real schema engine that can also validate events
// arriving over the wire (streams/wsstream) from a process that was
// never compiled against this module at all.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/durable-go/durable"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// eventSchemaSource is the JSON Schema every DurableEvent must satisfy,
// matching the tagged-union shape defined in event.go.
const eventSchemaSource = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {
      "enum": [
        "effect:yielded", "effect:resolved", "effect:errored",
        "scope:created", "scope:destroyed", "scope:set", "scope:delete",
        "workflow:return"
      ]
    },
    "scopeId": {"type": "string"},
    "parentScopeId": {"type": "string"},
    "effectId": {"type": "string"},
    "description": {"type": "string"},
    "contextName": {"type": "string"},
    "error": {
      "type": "object",
      "required": ["name", "message"],
      "properties": {
        "name": {"type": "string"},
        "message": {"type": "string"},
        "stack": {"type": "string"}
      }
    },
    "result": {
      "type": "object",
      "required": ["ok"],
      "properties": {
        "ok": {"type": "boolean"}
      }
    }
  }
}`

// schemaCache avoids recompiling the schema once per EventValidator,
// grounded on the teacher's TypeSafeCache (cache.go) generic wrapper.
var schemaCache = durable.NewTypeSafeCache[*jsonschema.Schema]()

// EventValidator validates DurableEvent values against the compiled
// event schema.
type EventValidator struct {
	schema *jsonschema.Schema
}

// NewEventValidator compiles (or reuses a cached compilation of) the
// event schema.
func NewEventValidator() (*EventValidator, error) {
	if schema, ok := schemaCache.Load("durable-event"); ok {
		return &EventValidator{schema: schema}, nil
	}

	var doc any
	if err := json.Unmarshal([]byte(eventSchemaSource), &doc); err != nil {
		return nil, fmt.Errorf("validation: parse schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("durable-event.json", doc); err != nil {
		return nil, fmt.Errorf("validation: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("durable-event.json")
	if err != nil {
		return nil, fmt.Errorf("validation: compile schema: %w", err)
	}
	schemaCache.Store("durable-event", schema)
	return &EventValidator{schema: schema}, nil
}

// Validate reports whether event satisfies the event schema.
func (v *EventValidator) Validate(event durable.DurableEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("validation: marshal event: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("validation: decode event: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("validation: event failed schema validation: %w", err)
	}
	return nil
}

// ValidatingStream wraps a durable.DurableStream and rejects any
// DurableEvent that fails schema validation before it reaches the
// underlying backend, for backends fed by untrusted or cross-version
// producers (see streams/wsstream).
type ValidatingStream struct {
	durable.DurableStream
	validator *EventValidator
}

// NewValidatingStream wraps backend with schema validation on Append.
func NewValidatingStream(backend durable.DurableStream) (*ValidatingStream, error) {
	v, err := NewEventValidator()
	if err != nil {
		return nil, err
	}
	return &ValidatingStream{DurableStream: backend, validator: v}, nil
}

// Append validates event before delegating to the wrapped stream.
func (s *ValidatingStream) Append(event durable.DurableEvent) (int, error) {
	if err := s.validator.Validate(event); err != nil {
		return 0, err
	}
	return s.DurableStream.Append(event)
}
