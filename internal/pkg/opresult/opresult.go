// Package opresult carries the outcome of best-effort infrastructure calls.
//
// Background loops must survive store outages, so queue and aggregation
// operations do not return bare errors. They return a Result whose Value is
// always usable (the neutral value when degraded) and whose Err explains why
// the call degraded. Callers treat a degraded result as "try again later".
package opresult

import (
	stderrors "errors"
	"fmt"

	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
)

type Result[T any] struct {
	Value T
	Err   error
}

func OK[T any](v T) Result[T] { return Result[T]{Value: v} }

// Degrade returns the neutral value of T tagged with the cause.
func Degrade[T any](op string, err error) Result[T] {
	var zero T
	if err == nil {
		return Result[T]{Value: zero}
	}
	return Result[T]{Value: zero, Err: fmt.Errorf("%s: %w: %w", op, apperr.ErrStoreUnavailable, err)}
}

func (r Result[T]) Degraded() bool { return r.Err != nil }

// Unwrap returns the value and the degradation cause, for callers that prefer (T, error).
func (r Result[T]) Unwrap() (T, error) { return r.Value, r.Err }

func IsDegraded(err error) bool { return stderrors.Is(err, apperr.ErrStoreUnavailable) }
