package config

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict_MissingVarErrors(t *testing.T) {
	t.Setenv("PRESENT", "ok")

	_, err := ExpandEnvStrict("a=${PRESENT} b=${MISSING_B} c=${MISSING_A}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("error = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), "MISSING_A, MISSING_B") {
		t.Errorf("missing names should be listed sorted, got %v", err)
	}
}

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("X", "y")

	tests := map[string]string{
		"${X}":     "y",
		"$X/path":  "y/path",
		"$$${X}":   "$y",
		"price $$": "price $",
		"plain":    "plain",
	}
	for in, want := range tests {
		got, err := ExpandEnvStrict(in)
		if err != nil {
			t.Errorf("ExpandEnvStrict(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ExpandEnvStrict(%q) = %q, want %q", in, got, want)
		}
	}
}
