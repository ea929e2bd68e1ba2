package protocol

import (
	"fmt"
	"strings"

	"pangalink/entity"
)

// Validation stages, in the order they run.
const (
	StageClient    = "client"
	StageRequest   = "request"
	StageSignature = "signature"
)

// ValidationError rejects an inbound message. Stage tells which check failed.
type ValidationError struct {
	Stage    string
	Errors   []entity.Issue
	Warnings []entity.Issue
}

func NewValidationError(stage string, result entity.Result) *ValidationError {
	return &ValidationError{
		Stage:    stage,
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, issue := range e.Errors {
		messages = append(messages, issue.Message)
	}
	return fmt.Sprintf("%s validation failed: %s", e.Stage, strings.Join(messages, "; "))
}
