package jsonapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrMethodNotAllowed(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		allowed        []string
		wantDetail     string
		wantMetaMethod string
	}{
		{
			name:           "with allowed methods",
			method:         "GET",
			allowed:        []string{"POST"},
			wantDetail:     "GET is not supported. Use one of: POST",
			wantMetaMethod: "GET",
		},
		{
			name:           "no allowed methods",
			method:         "DELETE",
			allowed:        nil,
			wantDetail:     "The DELETE method is not allowed for this resource",
			wantMetaMethod: "DELETE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ErrMethodNotAllowed(tt.method, tt.allowed)

			if err.Status != "405" || err.Code != "method_not_allowed" {
				t.Errorf("Status/Code = %v/%v", err.Status, err.Code)
			}
			if err.Detail != tt.wantDetail {
				t.Errorf("Detail = %v, want %v", err.Detail, tt.wantDetail)
			}
			if method, ok := err.Meta["requested_method"].(string); !ok || method != tt.wantMetaMethod {
				t.Errorf("Meta[requested_method] = %v, want %v", method, tt.wantMetaMethod)
			}
			_, hasAllowed := err.Meta["allowed_methods"]
			if hasAllowed != (len(tt.allowed) > 0) {
				t.Errorf("Meta[allowed_methods] present = %v", hasAllowed)
			}
		})
	}
}

func TestErrorBuilder(t *testing.T) {
	err := NewError(422, "InvalidPatch", "Unprocessable Entity").
		Detailf("operation %d failed", 2).
		Pointer("/params/ops/2").
		Parameter("ops").
		Meta("target", "data").
		ID("req-1").
		Build()

	if err.StatusCode() != 422 {
		t.Errorf("StatusCode() = %d", err.StatusCode())
	}
	if err.Detail != "operation 2 failed" || err.ID != "req-1" {
		t.Errorf("err = %+v", err)
	}
	if err.Source == nil || err.Source.Pointer != "/params/ops/2" || err.Source.Parameter != "ops" {
		t.Errorf("Source = %+v", err.Source)
	}
	if err.Error() != "InvalidPatch: operation 2 failed" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		errs       []Error
		wantStatus int
		wantCode   string
	}{
		{"bad request", []Error{ErrBadRequest("invalid name")}, http.StatusBadRequest, "bad_request"},
		{"no errors", nil, http.StatusInternalServerError, "internal_error"},
		{"missing status", []Error{{Code: "x"}}, http.StatusInternalServerError, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.errs...)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != ContentType {
				t.Errorf("Content-Type = %q", ct)
			}

			var doc Document
			if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(doc.Errors) != 1 || doc.Errors[0].Code != tt.wantCode {
				t.Errorf("errors = %+v", doc.Errors)
			}
			if doc.JSONAPI == nil || doc.JSONAPI.Version != Version {
				t.Errorf("jsonapi = %+v", doc.JSONAPI)
			}
		})
	}
}

func TestWriteMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	WriteMethodNotAllowed(w, "GET", []string{"POST", "OPTIONS"})

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != "POST, OPTIONS" {
		t.Errorf("Allow = %q", allow)
	}
}
