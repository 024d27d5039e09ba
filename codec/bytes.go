package codec

// Bytes maps Go strings to their raw bytes unchanged. It is the default
// codec for collection views and never fails to encode.
type Bytes struct{}

// Encode implements Codec.
func (Bytes) Encode(value string) ([]byte, error) {
	return []byte(value), nil
}

// Decode implements Codec.
func (Bytes) Decode(data []byte) (string, error) {
	return string(data), nil
}

// Equal implements Codec.
func (Bytes) Equal(other Codec[string]) bool {
	_, ok := other.(Bytes)
	return ok
}
