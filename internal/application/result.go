package application

import "context"

// Result carries either the value produced by a command or the validation
// failures that stopped it, never both.
type Result[T any] struct {
	value T
	errs  *ValidationError
}

// Success wraps a value produced by a command that passed validation.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Failure wraps validation failures. Passing an empty accumulator is a
// programming error and panics.
func Failure[T any](errs *ValidationError) Result[T] {
	if errs.IsEmpty() {
		panic(ErrInvalidResult)
	}
	return Result[T]{errs: errs}
}

// NewResult builds a Result from optional parts and reports ErrInvalidResult
// unless exactly one of them is populated.
func NewResult[T any](value *T, errs *ValidationError) (Result[T], error) {
	hasErrs := errs.HasErrors()
	switch {
	case value != nil && hasErrs, value == nil && !hasErrs:
		return Result[T]{}, ErrInvalidResult
	case hasErrs:
		return Result[T]{errs: errs}, nil
	default:
		return Result[T]{value: *value}, nil
	}
}

// Succeeded reports whether the command produced a value.
func (r Result[T]) Succeeded() bool {
	return r.errs == nil
}

// Value returns the produced value and whether it is present.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.errs == nil
}

// Errors returns the accumulated validation failures, or nil on success.
func (r Result[T]) Errors() *ValidationError {
	return r.errs
}

// Command is a single-operation unit of work. Execute validates the request
// and, only when it is valid, performs at most one logical transaction.
// Expected failures travel inside the Result; the error return is reserved
// for storage and other unexpected faults.
type Command[T any] interface {
	Execute(ctx context.Context) (Result[T], error)
}
