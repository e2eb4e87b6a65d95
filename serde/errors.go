package serde

import "fmt"

// UnexpectedTypeError is returned by typed codecs when asked to encode
// a value of a type different from the one they have been built for.
type UnexpectedTypeError struct {
	Codec    string
	Expected any
	Actual   any
}

func (err *UnexpectedTypeError) Error() string {
	return fmt.Sprintf("serde.%s: unexpected value type, expected %T, got %T", err.Codec, err.Expected, err.Actual)
}
