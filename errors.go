package collections

import "errors"

// ErrInvalidOperand is returned when an algebra operation receives a
// zero-value Operand. Encoding failures surface the codec package's
// ErrConversion instead; gateway and connection failures pass through
// unchanged.
var ErrInvalidOperand = errors.New("invalid operand")
