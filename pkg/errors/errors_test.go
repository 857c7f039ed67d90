package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "x"), http.StatusTeapot},
		{"missing column", fmt.Errorf("loading: %w", ErrMissingColumn), http.StatusUnprocessableEntity},
		{"dataset not found", ErrDatasetNotFound, http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"unsupported file", ErrUnsupportedFile, http.StatusUnsupportedMediaType},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"upstream", ErrUpstream, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrapAndMessage(t *testing.T) {
	err := Newf(ErrMissingColumn, http.StatusUnprocessableEntity, "CSV file must contain %q column", "Keyword")
	if !errors.Is(err, ErrMissingColumn) {
		t.Error("AppError should unwrap to its sentinel")
	}
	if got := Message(err); got != `CSV file must contain "Keyword" column` {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(errors.New("plain")); got != "plain" {
		t.Errorf("Message(plain) = %q", got)
	}
}

func TestValidationError(t *testing.T) {
	err := error(&ValidationError{Fields: map[string]string{
		"rank":  "must be a positive integer",
		"quota": "is required",
	}})
	if got := err.Error(); got != "quota: is required; rank: must be a positive integer" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should wrap ErrInvalidInput")
	}
	if got := HTTPStatusCode(err); got != http.StatusBadRequest {
		t.Errorf("HTTPStatusCode() = %d, want 400", got)
	}
}
