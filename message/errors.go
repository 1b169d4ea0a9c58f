package message

import "errors"

var (
	// ErrMalformedParameter is returned when get-param's type-tag/count
	// prefix doesn't match what's on the wire, or the token count disagrees
	// with the declared count (§4.1).
	ErrMalformedParameter = errors.New("message: malformed parameter")

	// ErrParamNotFound is returned when no parameter with the given name
	// is present. Unlike ErrMalformedParameter this is an ordinary,
	// expected outcome (e.g. probing for an optional parameter).
	ErrParamNotFound = errors.New("message: parameter not found")

	// ErrBufferOver mirrors the wire-level BufferOver return code: the
	// frame declares a length that would overflow the configured maximum.
	ErrBufferOver = errors.New("message: frame exceeds maximum buffer size")

	// ErrMalformedFrame is returned when the framing layer reads a
	// length header that isn't valid hex, or a payload whose last byte
	// isn't the NUL terminator (§4.2).
	ErrMalformedFrame = errors.New("message: malformed frame")

	// ErrInvalidValue is returned by SetParamString when the value
	// contains a wire-reserved character (';' or ','). SetParamChars does
	// not check its values.
	ErrInvalidValue = errors.New("message: value contains a reserved wire character")
)
