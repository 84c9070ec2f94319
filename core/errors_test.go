package core

import (
	"testing"

	"github.com/pkg/errors"
)

func TestValidationErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "wrapped error only",
			err:  NewValidationError(errors.New("boom")),
			want: "boom",
		},
		{
			name: "with field errors",
			err: NewValidationError(errors.New("invalid payload"),
				FieldError{Field: "content", Error: "is required"},
			),
			want: "invalid payload",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestIsShutdown(t *testing.T) {
	err := NewShutdownError("integrity issue")
	if !IsShutdown(err) {
		t.Error("IsShutdown() = false; want true")
	}
	if !IsShutdown(errors.Wrap(err, "handling request")) {
		t.Error("IsShutdown(wrapped) = false; want true")
	}
	if IsShutdown(errors.New("boom")) {
		t.Error("IsShutdown(plain) = true; want false")
	}
}
