package rpc

import (
	"bytes"
	"fmt"
)

// rawCodec passes stream messages through as bytes. Batches are already in
// wire format, so there is nothing left to marshal.
type rawCodec struct{}

func (rawCodec) Name() string { return "raw" }

// Marshal copies the message: gRPC may still hold the bytes after SendMsg
// returns, while the batch buffer is reused immediately.
func (rawCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case []byte:
		return bytes.Clone(m), nil
	case *[]byte:
		return bytes.Clone(*m), nil
	default:
		return nil, fmt.Errorf("rpc: cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("rpc: cannot unmarshal into %T", v)
	}
	*m = append((*m)[:0], data...)
	return nil
}
