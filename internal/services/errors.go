// internal/services/errors.go
package services

import "errors"

// Error taxonomy shared by all services. Handlers translate these with
// errors.Is; services wrap them with context via fmt.Errorf("%w: ...").
var (
	// ErrValidation: malformed input (bad id format, percentage out of
	// range, empty approver list). Caller fixes and retries.
	ErrValidation = errors.New("validation error")

	// ErrNotFound: expense/rule/user absent or outside the caller's
	// company scope.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied: caller may not read the resource.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotAuthorizedApprover: caller is not in the expense's authorized
	// actor set for the current routing step.
	ErrNotAuthorizedApprover = errors.New("not an authorized approver")

	// ErrInvalidState: action not valid for the expense's current status,
	// e.g. submitting a non-draft or approving a terminal expense.
	ErrInvalidState = errors.New("invalid state")

	// ErrRuleNotFound: no applicable approval rule; the expense is left
	// submitted and unrouted.
	ErrRuleNotFound = errors.New("no approval rule found")

	// ErrConversionFailed: currency conversion failed; aborts the
	// operation that needed it.
	ErrConversionFailed = errors.New("currency conversion failed")
)
