package entity

// Issue is a single validation error or warning bound to a field.
type Issue struct {
	Field   string `json:"field" bson:"field"`
	Value   string `json:"value,omitempty" bson:"value,omitempty"`
	Message string `json:"message" bson:"message"`
	// Download marks signature failures where the source hash should be offered to the user.
	Download bool `json:"download,omitempty" bson:"download,omitempty"`
}

// Result of a validation step. Success is false when Errors is not empty.
type Result struct {
	Success  bool    `json:"success"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// NewResult builds a result from collected issues.
func NewResult(errors, warnings []Issue) Result {
	return Result{
		Success:  len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
	}
}

// Ok is a successful result without remarks.
func Ok() Result {
	return Result{Success: true}
}

// Fail is a failed result with a single error.
func Fail(issue Issue) Result {
	return Result{Errors: []Issue{issue}}
}
