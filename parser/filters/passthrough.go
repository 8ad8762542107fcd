package filters

// passthroughFilter keeps the body opaque, for the image codecs
// (DCT, JBIG2, JPX) whose decoders are not compiled in: the consumer
// receives the encoded bytes unchanged.
type passthroughFilter struct{}

func (passthroughFilter) Encode(data []byte, _ Params) ([]byte, error) { return data, nil }
func (passthroughFilter) Decode(data []byte, _ Params) ([]byte, error) { return data, nil }
