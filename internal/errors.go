package internal

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrUnknownVendor = errors.New("unknown vendor")
	ErrParse         = errors.New("parse error")
	ErrEncode        = errors.New("encode error")
)

type EmptyPayloadError struct {
	What string
}

func (e *EmptyPayloadError) Error() string {
	return fmt.Sprintf("no data provided: %s is empty", e.What)
}

func (e *EmptyPayloadError) Is(target error) bool { return target == ErrEmptyPayload }

type UnknownVendorError struct {
	Vendor string
}

func (e *UnknownVendorError) Error() string {
	return fmt.Sprintf("incorrect api %q: not allowed to process data", e.Vendor)
}

func (e *UnknownVendorError) Is(target error) bool { return target == ErrUnknownVendor }

// ParseError reports malformed delimited or JSON input. Line is 1-based, 0 when unknown.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

type EncodeError struct {
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("encode error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("encode error: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }
