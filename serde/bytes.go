package serde

import "bytes"

// Bytes returns a Codec passing payloads through untouched.
//
// Decoded values are []byte copies of the payload, so that they do not alias
// buffers owned by the storage driver.
//
// It is the default codec for SerializerIDBytes.
func Bytes() Fused {
	return Fuse(
		typedEncoder("Bytes", func(b []byte) ([]byte, error) {
			return bytes.Clone(b), nil
		}),
		DecodeFunc(func(data []byte) (any, error) {
			return bytes.Clone(data), nil
		}),
	)
}
