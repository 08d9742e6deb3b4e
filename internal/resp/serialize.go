package resp

import "strconv"

// Serialize appends the wire encoding of v to dst and returns the extended
// slice, the inverse mapping of Tokenize/Materialize.
func Serialize(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindSimpleString:
		return appendLine(dst, '+', v.Bytes)
	case KindSimpleError:
		return appendLine(dst, '-', v.Bytes)
	case KindBulkString:
		dst = appendLine(dst, '$', strconv.Itoa(len(v.Bytes)))
		dst = append(dst, v.Bytes...)
		return append(dst, '\r', '\n')
	case KindNullBulkString:
		return append(dst, '$', '-', '1', '\r', '\n')
	case KindArray:
		dst = appendLine(dst, '*', strconv.Itoa(len(v.Array)))
		for _, child := range v.Array {
			dst = Serialize(dst, child)
		}
		return dst
	default:
		return dst
	}
}

// appendLine appends "<marker><body>\r\n" for any body type that can be
// turned into bytes cheaply.
func appendLine[T []byte | string](dst []byte, marker byte, body T) []byte {
	dst = append(dst, marker)
	dst = append(dst, []byte(body)...)
	return append(dst, '\r', '\n')
}

// Encode serializes v into a freshly allocated byte slice.
func Encode(v Value) []byte {
	return Serialize(nil, v)
}

// RawFullResync builds the literal FULLRESYNC preamble bytes
// "+FULLRESYNC <replid> <offset>\r\n" without routing through Serialize,
// since it must be written exactly once and never double-framed.
func RawFullResync(replID string, offset int64) []byte {
	b := make([]byte, 0, len(replID)+32)
	b = append(b, '+')
	b = append(b, "FULLRESYNC "...)
	b = append(b, replID...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, offset, 10)
	return append(b, '\r', '\n')
}

// RawBulkHeader builds the "$<n>\r\n" prefix used to frame a raw RDB payload
// (no trailing CRLF after the payload, unlike a regular bulk string).
func RawBulkHeader(n int) []byte {
	b := make([]byte, 0, 16)
	b = append(b, '$')
	b = strconv.AppendInt(b, int64(n), 10)
	return append(b, '\r', '\n')
}
