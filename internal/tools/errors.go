package tools

import "errors"

var (
	// ErrToolNameEmpty indicates a tool was defined without a name.
	ErrToolNameEmpty = errors.New("tool name is empty")

	// ErrToolExecuteNil indicates a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function is nil")

	// ErrToolAlreadyRegistered indicates a duplicate registration.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrToolNotFound indicates a lookup for an unknown tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrMissingRequiredArg indicates a call omitted a required argument.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType indicates an argument failed type validation.
	ErrInvalidArgType = errors.New("invalid argument type")

	// ErrPermissionDenied indicates a sandbox boundary violation.
	// Tools return it (wrapped) when a path or command escapes the
	// session sandbox; the dispatcher maps it to a PermissionDenied
	// result rather than a crash.
	ErrPermissionDenied = errors.New("permission denied: outside sandbox boundary")
)
