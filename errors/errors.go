package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Op, e.Msg)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func WrapWithCode(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code: code,
		Op:   op,
		Err:  err,
	}
}

func New(code Code, op, msg string) error {
	return &AppError{Code: code, Op: op, Msg: msg}
}

func Newf(code Code, op, format string, args ...any) error {
	return &AppError{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) Code {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return ""
}

// Retryable reports whether the caller may safely try the request again.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeLedgerSubmission, DailChain, CodeChainRPC, PendingNonceAt, GetchainIDErr, CodeGasEstimate:
		return true
	}
	return false
}

// Message returns the human readable part of err without the code prefix.
func Message(err error) string {
	var app *AppError
	if stderrors.As(err, &app) {
		if app.Msg != "" {
			return app.Msg
		}
		if app.Err != nil {
			return app.Err.Error()
		}
		return string(app.Code)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
