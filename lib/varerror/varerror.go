package varerror

import (
	"errors"
)

// Kind classifies an error for callers that need to react differently
// to a bad query, a bad filter, or a failing backend.
type Kind string

const (
	// KindFieldResolution: a filter, field list, or order-by referenced
	// a field name absent from the catalog.
	KindFieldResolution Kind = "field_resolution"

	// KindMalformedFilter: a combinator violated an arity invariant.
	KindMalformedFilter Kind = "malformed_filter"

	// KindBackendExecution: a compiled query failed at the store.
	KindBackendExecution Kind = "backend_execution"

	// KindBadInput: malformed data on the ingestion side.
	KindBadInput Kind = "bad_input"
)

type ErrorDetail struct {
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type VardexError interface {
	Error() string
	Kind() Kind
	Detail() ErrorDetail
	Unwrap() error
}

type errorOptions struct {
	kind   Kind
	detail ErrorDetail
	cause  error
}

func (e *errorOptions) Kind() Kind {
	if e.kind == "" {
		return KindBackendExecution
	}
	return e.kind
}

func (e *errorOptions) Detail() ErrorDetail {
	return e.detail
}

func (e *errorOptions) Error() string {
	if e.cause != nil {
		return e.detail.Message + ": " + e.cause.Error()
	}
	return e.detail.Message
}

func (e *errorOptions) Unwrap() error {
	return e.cause
}

type ErrorOption func(*errorOptions)

func WithKind(kind Kind) ErrorOption {
	return func(opts *errorOptions) {
		opts.kind = kind
	}
}

func WithMessage(message string) ErrorOption {
	return func(opts *errorOptions) {
		opts.detail.Message = message
	}
}

func WithField(fieldName string) ErrorOption {
	return WithData("field", fieldName)
}

func WithData(key string, value interface{}) ErrorOption {
	return func(opts *errorOptions) {
		if opts.detail.Data == nil {
			opts.detail.Data = make(map[string]interface{})
		}
		opts.detail.Data[key] = value
	}
}

func WithCause(err error) ErrorOption {
	return func(opts *errorOptions) {
		opts.cause = err
	}
}

func New(options ...ErrorOption) VardexError {
	opts := errorOptions{}
	for _, option := range options {
		option(&opts)
	}

	if opts.kind == "" {
		opts.kind = KindBackendExecution
	}

	if opts.detail.Message == "" {
		opts.detail.Message = "internal error"
	}

	return &opts
}

func asError(err error) (VardexError, bool) {
	var maybeErr VardexError
	if errors.As(err, &maybeErr) {
		return maybeErr, true
	}

	return nil, false
}

// AsVardexError classifies an arbitrary error. Errors that did not come
// from this package are treated as backend execution failures.
func AsVardexError(err error) VardexError {
	ve, ok := asError(err)
	if ok {
		return ve
	}

	return New(
		WithKind(KindBackendExecution),
		WithMessage("unclassified error"),
		WithCause(err),
	)
}

func KindOf(err error) Kind {
	return AsVardexError(err).Kind()
}

func IsKind(err error, kind Kind) bool {
	ve, ok := asError(err)
	if !ok {
		return false
	}
	return ve.Kind() == kind
}
