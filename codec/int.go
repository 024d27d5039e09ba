package codec

import (
	"fmt"
	"strconv"
)

// Int maps int64 values to their decimal ASCII representation, the form
// Redis integer commands operate on natively.
type Int struct{}

// Encode implements Codec.
func (Int) Encode(value int64) ([]byte, error) {
	return strconv.AppendInt(nil, value, 10), nil
}

// Decode implements Codec.
func (Int) Decode(data []byte) (int64, error) {
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal integer", ErrConversion, data)
	}
	return n, nil
}

// Equal implements Codec.
func (Int) Equal(other Codec[int64]) bool {
	_, ok := other.(Int)
	return ok
}
