// Package codec converts between native values and the byte-string
// representation stored in Redis. Codecs are interchangeable: a collection
// view is bound to one codec, and two views may only delegate set algebra
// to the server when their codecs are equal.
package codec

import "errors"

// ErrConversion is returned when a value cannot be represented by a codec,
// or when a stored payload cannot be decoded back into a value.
var ErrConversion = errors.New("codec: value not representable")

// Codec is a deterministic, pure mapping between values of type T and byte
// strings. Encode fails for values outside the codec's domain; Decode fails
// for payloads that were not produced by an equal codec.
type Codec[T comparable] interface {
	// Encode converts a value into its byte-string representation.
	// Returns an error wrapping ErrConversion for values outside the domain.
	Encode(value T) ([]byte, error)

	// Decode converts a stored byte string back into a value.
	Decode(data []byte) (T, error)

	// Equal reports whether the other codec has the same identity and
	// configuration, i.e. whether payloads written by one can be read by
	// the other. Remote set algebra across two views requires this.
	Equal(other Codec[T]) bool
}
