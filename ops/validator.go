package ops

import (
	"encoding/json"

	cm "github.com/mosaicnetworks/continuity/common"
)

// Validator is the pluggable operation validator collaborator. Queue.Submit
// consults it before a local operation is queued. Events that arrive
// through gossip are not passed to it.
type Validator interface {
	Validate(op []byte) error
}

// JSONValidator accepts any well-formed JSON operation. The default
// when no application validator is plugged in.
type JSONValidator struct{}

func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

func (v *JSONValidator) Validate(op []byte) error {
	if len(op) == 0 {
		return cm.NewError(cm.Validation, "empty operation")
	}
	if !json.Valid(op) {
		return cm.NewError(cm.Syntax, "operation is not valid JSON")
	}
	return nil
}

// AcceptAllValidator accepts every operation. Test use only.
type AcceptAllValidator struct{}

func (AcceptAllValidator) Validate(op []byte) error { return nil }
