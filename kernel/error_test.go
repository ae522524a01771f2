package kernel

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	errNoFrames := &Error{Module: "frame_alloc", Message: "out of memory"}

	var err error = errNoFrames
	if got := err.Error(); got != "out of memory" {
		t.Fatalf("expected Error() to return the message; got %q", got)
	}

	if !errors.Is(err, errNoFrames) {
		t.Fatal("expected an error to match itself")
	}

	if errors.Is(err, &Error{Module: "frame_alloc", Message: "out of memory"}) {
		t.Fatal("expected errors with equal fields to be distinct values")
	}
}
