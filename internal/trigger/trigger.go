// Package trigger parses run-request messages: one JSON event per pipeline
// run, validated against a schema before any field is trusted.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Job types accepted on the invocation surface.
const (
	JobTypeFull        = "full"
	JobTypeIncremental = "incremental"
	JobTypeStream      = "stream"
)

// ErrInvalidMessage is returned for payloads the schema rejects.
var ErrInvalidMessage = errors.New("invalid run request")

// messageSchema is the contract for run-request payloads.
const messageSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["job_type"],
	"additionalProperties": false,
	"properties": {
		"job_type": {"type": "string", "enum": ["full", "incremental", "stream"]},
		"hours": {"type": "integer", "minimum": 1},
		"stream_id": {"type": "string", "minLength": 1},
		"enable_ai": {"type": "boolean"},
		"batch_size": {"type": "integer", "minimum": 1, "maximum": 10000}
	},
	"allOf": [
		{
			"if": {"properties": {"job_type": {"const": "incremental"}}},
			"then": {"required": ["hours"]}
		},
		{
			"if": {"properties": {"job_type": {"const": "stream"}}},
			"then": {"required": ["stream_id"]}
		}
	]
}`

// Request is one validated run request.
type Request struct {
	JobType   string `json:"job_type"`
	Hours     int    `json:"hours,omitempty"`
	StreamID  string `json:"stream_id,omitempty"`
	EnableAI  bool   `json:"enable_ai,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

var schema = gojsonschema.NewStringLoader(messageSchema)

// Parse validates and decodes a run-request payload.
func Parse(payload []byte) (Request, error) {
	document := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schema, document)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if !result.Valid() {
		issues := result.Errors()
		if len(issues) > 0 {
			return Request{}, fmt.Errorf("%w: %s", ErrInvalidMessage, issues[0].String())
		}

		return Request{}, ErrInvalidMessage
	}

	var request Request

	unmarshalErr := json.Unmarshal(payload, &request)
	if unmarshalErr != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidMessage, unmarshalErr)
	}

	return request, nil
}
