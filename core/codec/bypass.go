package codec

// Bypass is the CompressionNone codec: it passes data through unmodified.
type Bypass struct{}

func (Bypass) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (Bypass) Decompress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
