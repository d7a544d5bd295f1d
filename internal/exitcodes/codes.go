package exitcodes

import "errors"

// Standard exit codes for lemp-provision
const (
	// Success indicates every step completed
	Success = 0

	// GeneralError indicates a general/unknown error
	GeneralError = 1

	// InvalidArgs indicates invalid flags or an invalid configuration value
	InvalidArgs = 2

	// PreconditionFailed indicates the host is not ready to be provisioned
	// (e.g., not running as root, not Ubuntu, another run holds the lock)
	PreconditionFailed = 3

	// NetworkError indicates a download failure
	// (e.g., installer or signature unreachable, non-200 response)
	NetworkError = 4

	// ProcessError indicates an external command exited non-zero
	// (apt-get, systemctl, mysql, php)
	ProcessError = 5

	// ValidationError indicates a verification failure
	// (e.g., installer hash mismatch, nginx -t rejected the config, doctor failures)
	ValidationError = 6
)

// CodeForError maps err to a process exit code. The outermost *Error in the
// chain wins; anything else is GeneralError.
func CodeForError(err error) int {
	if err == nil {
		return Success
	}
	var ec *Error
	if errors.As(err, &ec) {
		return ec.Code
	}
	return GeneralError
}
