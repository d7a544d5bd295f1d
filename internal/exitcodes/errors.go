package exitcodes

import "fmt"

// Error attaches an exit code to a failure. Op names what was being done
// ("download installer", "inspect host") and prefixes the cause.
type Error struct {
	Code int
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Op
	case e.Op == "":
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with code. An empty op keeps the cause's message as is.
func Wrap(code int, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Newf builds a codeless-cause error from a message.
func Newf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Op: fmt.Sprintf(format, args...)}
}

// Invalid reports a bad flag, environment value or config file.
func Invalid(op string, err error) *Error { return Wrap(InvalidArgs, op, err) }

// Precondition reports a host that cannot be provisioned as it stands.
func Precondition(op string, err error) *Error { return Wrap(PreconditionFailed, op, err) }

func Preconditionf(format string, args ...any) *Error {
	return Newf(PreconditionFailed, format, args...)
}

// Network reports a failed download.
func Network(op string, err error) *Error { return Wrap(NetworkError, op, err) }

func Networkf(format string, args ...any) *Error { return Newf(NetworkError, format, args...) }

// Validation reports content that was fetched or written but did not verify:
// a hash mismatch, an nginx -t rejection, a doctor failure.
func Validation(op string, err error) *Error { return Wrap(ValidationError, op, err) }

func Validationf(format string, args ...any) *Error { return Newf(ValidationError, format, args...) }
