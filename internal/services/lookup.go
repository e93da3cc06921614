package services

import "log"

// Lookup is the outcome of a read that may legitimately find nothing.
// Found and Err are never both set.
type Lookup[T any] struct {
	Value T
	Found bool
	Err   error
}

// Failed reports a store error, as opposed to a genuine absence.
func (l Lookup[T]) Failed() bool { return l.Err != nil }

// FoundLookup wraps a present value.
func FoundLookup[T any](v T) Lookup[T] { return Lookup[T]{Value: v, Found: true} }

// lookupPtr turns a (pointer, error) store result into a Lookup. Errors are
// logged under op and kept on the result.
func lookupPtr[T any](op string, v *T, err error) Lookup[*T] {
	if err != nil {
		log.Printf("services: %s: %v", op, err)
		return Lookup[*T]{Err: err}
	}
	if v == nil {
		return Lookup[*T]{}
	}
	return Lookup[*T]{Value: v, Found: true}
}
