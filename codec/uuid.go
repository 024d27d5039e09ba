package codec

import (
	"fmt"

	"github.com/google/uuid"
)

// UUID maps UUID strings to their canonical lowercase form. Its value domain
// is narrower than its Go type: encoding a string that does not parse as a
// UUID fails, so membership tests against a UUID-typed view answer false for
// arbitrary strings instead of querying the server.
type UUID struct{}

// Encode implements Codec.
func (UUID) Encode(value string) ([]byte, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a UUID", ErrConversion, value)
	}
	return []byte(id.String()), nil
}

// Decode implements Codec.
func (UUID) Decode(data []byte) (string, error) {
	id, err := uuid.ParseBytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a UUID", ErrConversion, data)
	}
	return id.String(), nil
}

// Equal implements Codec.
func (UUID) Equal(other Codec[string]) bool {
	_, ok := other.(UUID)
	return ok
}
