package queuekit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
)

// EnqueueRequest describes a mutation to queue
type EnqueueRequest struct {
	Type       OperationType  `json:"type" validate:"required,oneof=CREATE UPDATE DELETE BATCH"`
	Collection string         `json:"collection" validate:"required"`
	DocumentID string         `json:"documentId,omitempty" validate:"required_if=Type UPDATE,required_if=Type DELETE"`
	Data       map[string]any `json:"data,omitempty"`
	Operations []Operation    `json:"operations,omitempty" validate:"required_if=Type BATCH,dive"`
	Priority   Priority       `json:"priority,omitempty" validate:"omitempty,oneof=LOW NORMAL HIGH CRITICAL"`

	// MaxRetries overrides the manager default when set
	MaxRetries *int `json:"maxRetries,omitempty" validate:"omitempty,gte=0"`

	// OriginalVersion is the server version the client edited from. Leave it
	// empty to skip conflict detection.
	OriginalVersion    string            `json:"originalVersion,omitempty"`
	ConflictResolution conflict.Strategy `json:"conflictResolution,omitempty" validate:"omitempty,oneof=SERVER_WINS CLIENT_WINS MERGE USER_CHOICE"`

	UserID string `json:"userId,omitempty"`
	TeamID string `json:"teamId,omitempty"`
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func validateRequest(v *validator.Validate, req EnqueueRequest) error {
	if err := v.Struct(req); err != nil {
		return describeValidation(err)
	}
	if req.Type != OpBatch && len(req.Operations) > 0 {
		return errors.New("operations are only allowed on BATCH items")
	}
	return nil
}

// describeValidation flattens validator errors into one readable message
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid request: %s", strings.Join(parts, "; "))
}
