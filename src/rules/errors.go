package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures inside the engine.
type ErrorKind string

const (
	KindValidation ErrorKind = "ValidationFailure"
	KindEval       ErrorKind = "EvalError"
	KindExternal   ErrorKind = "ExternalFailure"
	KindFault      ErrorKind = "EngineFault"
)

// EvalErrorCode identifies why a formula could not be evaluated.
type EvalErrorCode string

const (
	ErrCodeUnknownField   EvalErrorCode = "UnknownField"
	ErrCodeDivisionByZero EvalErrorCode = "DivisionByZero"
	ErrCodeSyntax         EvalErrorCode = "SyntaxError"
	ErrCodeNotNumeric     EvalErrorCode = "NotNumeric"
)

// EvalError is returned by Evaluate and ParseFormula.
type EvalError struct {
	Code    EvalErrorCode
	Message string
	// Pos is the byte offset in the formula, -1 when not applicable.
	Pos int
}

func (e *EvalError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at %d)", e.Code, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsEvalError reports whether err is an EvalError with the given code.
func IsEvalError(err error, code EvalErrorCode) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// ValidationError lists every problem found in a rule definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid rule: " + strings.Join(e.Problems, "; ")
}

// ActionError is a failure of a single action that should not be mistaken for
// an external failure (bad parameters, category type mismatch, non-positive amount).
type ActionError struct {
	Message string
}

func (e *ActionError) Error() string {
	return e.Message
}

// FaultError wraps a panic recovered while running a rule.
type FaultError struct {
	Value interface{}
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("engine fault: %v", e.Value)
}

// KindOf classifies err. Anything that is not recognisably ours is treated as
// an external failure of the repository the action called.
func KindOf(err error) ErrorKind {
	var (
		ee *EvalError
		ve *ValidationError
		ae *ActionError
		fe *FaultError
	)
	switch {
	case errors.As(err, &ee):
		return KindEval
	case errors.As(err, &ve), errors.As(err, &ae):
		return KindValidation
	case errors.As(err, &fe):
		return KindFault
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindFault
	}
	return KindExternal
}
