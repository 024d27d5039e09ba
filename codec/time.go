package codec

import (
	"fmt"
	"time"
)

// Time maps time.Time values to RFC 3339 text with nanosecond precision.
// All values are normalized to UTC so that equal instants encode to equal
// byte strings regardless of the location they carry.
type Time struct{}

// Encode implements Codec.
func (Time) Encode(value time.Time) ([]byte, error) {
	utc := value.UTC()
	data, err := utc.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return data, nil
}

// Decode implements Codec.
func (Time) Decode(data []byte) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC 3339 timestamp", ErrConversion, data)
	}
	return t.UTC(), nil
}

// Equal implements Codec.
func (Time) Equal(other Codec[time.Time]) bool {
	_, ok := other.(Time)
	return ok
}
