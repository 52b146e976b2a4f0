// Package codec encodes metric entries in protobuf wire format.
//
// A batch is a MetricResponse message:
//
//	message Metric {
//	  repeated fixed32 token_path = 1 [packed = true];
//	  oneof value {
//	    double as_float = 2;
//	    sint64 as_int = 3;
//	  }
//	}
//
//	message MetricResponse {
//	  repeated Metric metrics = 1;
//	}
//
// Every entry appended by Proto is one element of MetricResponse.metrics, so
// any concatenation of entries is itself a valid batch.
package codec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/idudko/go-metric-stream/internal/model"
)

const (
	responseMetricsField protowire.Number = 1

	metricTokenPathField protowire.Number = 1
	metricAsFloatField   protowire.Number = 2
	metricAsIntField     protowire.Number = 3
)

var (
	// ErrShortBuffer is returned when an entry does not fit in the spare
	// capacity of the destination.
	ErrShortBuffer = errors.New("codec: entry does not fit in buffer")

	// ErrPathTooLong is returned for paths longer than model.MaxDepth.
	ErrPathTooLong = errors.New("codec: path too long")

	// ErrInvalidValue is returned for values with no kind.
	ErrInvalidValue = errors.New("codec: value has no kind")
)

// Proto is the protobuf wire entry encoder. The zero value is ready to use.
type Proto struct{}

// MaxEntrySize returns the worst-case encoded size of one entry, framing
// included: a full-depth path and the longest value encoding.
func (Proto) MaxEntrySize() int {
	return entrySize(metricSize(model.MaxDepth, maxValueSize()))
}

// EntrySize returns the encoded size of the entry for path and v.
func (Proto) EntrySize(path []model.Token, v model.Value) int {
	return entrySize(metricSize(len(path), valueSize(v)))
}

// AppendEntry appends the entry for path and v to dst.
//
// AppendEntry never grows dst: when the entry does not fit in
// cap(dst)-len(dst) it returns dst unchanged and ErrShortBuffer. On any error
// dst is returned unmodified.
func (Proto) AppendEntry(dst []byte, path []model.Token, v model.Value) ([]byte, error) {
	if len(path) > model.MaxDepth {
		return dst, fmt.Errorf("%w: %d names, limit %d", ErrPathTooLong, len(path), model.MaxDepth)
	}
	vs := valueSize(v)
	if vs == 0 {
		return dst, ErrInvalidValue
	}

	body := metricSize(len(path), vs)
	if need := entrySize(body); cap(dst)-len(dst) < need {
		return dst, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, need, cap(dst)-len(dst))
	}

	b := protowire.AppendTag(dst, responseMetricsField, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(body))
	if len(path) > 0 {
		b = protowire.AppendTag(b, metricTokenPathField, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(len(path)*protowire.SizeFixed32()))
		for _, t := range path {
			b = protowire.AppendFixed32(b, uint32(t))
		}
	}
	switch v.Kind() {
	case model.Float:
		b = protowire.AppendTag(b, metricAsFloatField, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.AsFloat()))
	case model.Int:
		b = protowire.AppendTag(b, metricAsIntField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.AsInt()))
	}
	return b, nil
}

func entrySize(body int) int {
	return protowire.SizeTag(responseMetricsField) + protowire.SizeBytes(body)
}

func metricSize(depth, valueSize int) int {
	n := valueSize
	if depth > 0 {
		n += protowire.SizeTag(metricTokenPathField) + protowire.SizeBytes(depth*protowire.SizeFixed32())
	}
	return n
}

func valueSize(v model.Value) int {
	switch v.Kind() {
	case model.Float:
		return protowire.SizeTag(metricAsFloatField) + protowire.SizeFixed64()
	case model.Int:
		return protowire.SizeTag(metricAsIntField) + protowire.SizeVarint(protowire.EncodeZigZag(v.AsInt()))
	default:
		return 0
	}
}

func maxValueSize() int {
	// math.MinInt64 zigzags to the largest varint.
	return max(
		valueSize(model.FloatValue(0)),
		valueSize(model.IntValue(math.MinInt64)),
	)
}
