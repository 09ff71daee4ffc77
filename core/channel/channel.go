// Package channel holds what the transports share: how callers are
// extracted from requests and how dispatch errors are reported on the wire.
package channel

import (
	"context"
	"errors"
	"net/http"

	"github.com/dapp-works/urpc/core/runtime"
	"github.com/dapp-works/urpc/core/schema"
	"github.com/dapp-works/urpc/pkg/jsonapi"
)

// InternalError is the code reported for errors that carry no kind, such
// as failures returned by user callbacks.
const InternalError = "InternalError"

// ContextFunc extracts the caller context from an inbound request.
type ContextFunc func(r *http.Request) (schema.Caller, error)

// Anonymous is the ContextFunc used when authentication is disabled.
func Anonymous(*http.Request) (schema.Caller, error) {
	return schema.Caller{}, nil
}

var statusByKind = map[schema.ErrorKind]int{
	schema.ErrBadRequest:        http.StatusBadRequest,
	schema.ErrUnknownTarget:     http.StatusNotFound,
	schema.ErrUnknownAction:     http.StatusNotFound,
	schema.ErrUnknownMethod:     http.StatusNotFound,
	schema.ErrNotWritable:       http.StatusMethodNotAllowed,
	schema.ErrPatchRejected:     http.StatusForbidden,
	schema.ErrInvalidPatch:      http.StatusUnprocessableEntity,
	schema.ErrPatchHookFailure:  http.StatusConflict,
	schema.ErrDuplicatePath:     http.StatusInternalServerError,
	schema.ErrSchemaCycle:       http.StatusInternalServerError,
	schema.ErrInvalidDefinition: http.StatusInternalServerError,
}

// ErrorObject converts a dispatch error into a JSON:API error object whose
// code is the error kind.
func ErrorObject(err error) jsonapi.Error {
	var apiErr jsonapi.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	kind := schema.KindOf(err)
	if kind == "" {
		return jsonapi.NewError(http.StatusInternalServerError, InternalError, "Internal Server Error").
			Detail(err.Error()).
			Build()
	}

	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	b := jsonapi.NewError(status, string(kind), http.StatusText(status)).Detail(err.Error())

	var se *schema.Error
	if errors.As(err, &se) && se.Target != "" {
		b = b.Meta("target", se.Target)
	}
	return b.Build()
}

// Dispatcher handles one decoded message. *runtime.Runtime satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, req runtime.Request) (any, error)
}
