package codec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/idudko/go-metric-stream/internal/model"
)

// ErrMalformed is returned when a batch is not a valid MetricResponse.
var ErrMalformed = errors.New("codec: malformed batch")

// Entry is one decoded metric: its full path and value.
type Entry struct {
	Path  []model.Token
	Value model.Value
}

// DecodeBatch decodes every entry of a batch.
func DecodeBatch(b []byte) ([]Entry, error) {
	var entries []Entry
	err := Decode(b, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Decode calls fn for each entry of a batch, in wire order. Decoding stops
// at the first error returned by fn.
func Decode(b []byte, fn func(Entry) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		if num != responseMetricsField || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		e, err := decodeMetric(msg)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func decodeMetric(b []byte) (Entry, error) {
	var e Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == metricTokenPathField && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 || len(packed)%protowire.SizeFixed32() != 0 {
				return e, fmt.Errorf("%w: bad token path", ErrMalformed)
			}
			b = b[n:]
			for len(packed) > 0 {
				t, n := protowire.ConsumeFixed32(packed)
				e.Path = append(e.Path, model.Token(t))
				packed = packed[n:]
			}
		case num == metricTokenPathField && typ == protowire.Fixed32Type:
			t, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return e, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			e.Path = append(e.Path, model.Token(t))
		case num == metricAsFloatField && typ == protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return e, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			e.Value = model.FloatValue(math.Float64frombits(bits))
		case num == metricAsIntField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			e.Value = model.IntValue(protowire.DecodeZigZag(v))
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if e.Value.Kind() == 0 {
		return e, fmt.Errorf("%w: metric without value", ErrMalformed)
	}
	return e, nil
}
