package client

import (
	"bytes"

	"github.com/datastax/go-cassandra-native-protocol/datacodec"
	"github.com/datastax/go-cassandra-native-protocol/datatype"
	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"github.com/gravitational/trace"
)

// frameCodec encodes and decodes protocol envelopes. No frame-level
// compression is negotiated, so the stateless codec can be shared.
var frameCodec = frame.NewCodec()

func encodeEnvelope(msg message.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := frameCodec.EncodeFrame(frame.NewFrame(protocolVersion, streamID, msg), &buf); err != nil {
		return nil, trace.Wrap(err)
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (*frame.Frame, error) {
	f, err := frameCodec.DecodeFrame(bytes.NewReader(data))
	if err != nil {
		return nil, trace.BadParameter("protocol violation: undecodable envelope: %v", err)
	}
	return f, nil
}

// decodeRows converts a rows result into a table of Go values. Column
// order and per-column types are taken from the server's metadata, not
// assumed from the query text.
func decodeRows(res *message.RowsResult, version primitive.ProtocolVersion) ([][]any, error) {
	if res.Metadata == nil {
		return nil, trace.BadParameter("protocol violation: rows result without metadata")
	}
	cols := res.Metadata.Columns
	if len(cols) == 0 && len(res.Data) > 0 {
		return nil, trace.BadParameter("protocol violation: rows result without column metadata")
	}

	table := make([][]any, 0, len(res.Data))
	for _, row := range res.Data {
		if len(row) != len(cols) {
			return nil, trace.BadParameter("protocol violation: row has %d values, metadata describes %d columns", len(row), len(cols))
		}
		values := make([]any, len(cols))
		for i, spec := range cols {
			value, err := decodeColumn(row[i], spec.Type, version)
			if err != nil {
				return nil, trace.BadParameter("decoding column %q: %v", spec.Name, err)
			}
			values[i] = value
		}
		table = append(table, values)
	}
	return table, nil
}

// decodeColumn decodes a single value with the codec matching its
// declared type. NULL columns come back as nil; types without a
// dedicated codec come back as a copy of the raw bytes.
func decodeColumn(column message.Column, dt datatype.DataType, version primitive.ProtocolVersion) (any, error) {
	if column == nil {
		return nil, nil
	}
	switch dt.Code() {
	case primitive.DataTypeCodeInt:
		var v int32
		if wasNull, err := datacodec.Int.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeBigint:
		var v int64
		if wasNull, err := datacodec.Bigint.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeSmallint:
		var v int16
		if wasNull, err := datacodec.Smallint.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeTinyint:
		var v int8
		if wasNull, err := datacodec.Tinyint.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeVarchar:
		var v string
		if wasNull, err := datacodec.Varchar.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeAscii:
		var v string
		if wasNull, err := datacodec.Ascii.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeBoolean:
		var v bool
		if wasNull, err := datacodec.Boolean.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeDouble:
		var v float64
		if wasNull, err := datacodec.Double.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeFloat:
		var v float32
		if wasNull, err := datacodec.Float.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeUuid:
		var v primitive.UUID
		if wasNull, err := datacodec.Uuid.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeTimeuuid:
		var v primitive.UUID
		if wasNull, err := datacodec.Timeuuid.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	case primitive.DataTypeCodeBlob:
		var v []byte
		if wasNull, err := datacodec.Blob.Decode(column, &v, version); err != nil || wasNull {
			return nil, err
		}
		return v, nil
	default:
		raw := make([]byte, len(column))
		copy(raw, column)
		return raw, nil
	}
}
