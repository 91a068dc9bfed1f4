package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection refused"), false},
		{"invalid", Invalid("name is required"), true},
		{"formatted", Invalidf("age must be between 0 and %d", 130), true},
		{"wrapped", fmt.Errorf("items[2]: %w", Invalid("quantity must be positive")), true},
		{"wrapping other", fmt.Errorf("begin: %w", errors.New("dial tcp")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalid(tt.err); got != tt.want {
				t.Errorf("IsInvalid(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestInvalid_MessageIsUnprefixed(t *testing.T) {
	err := fmt.Errorf("medicines[0]: %w", Invalidf("dosage is required"))
	if err.Error() != "medicines[0]: dosage is required" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
