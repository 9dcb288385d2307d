package db

import (
	"context"
	"errors"
	"testing"
)

func TestOpen_MissingURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	if !errors.Is(err, ErrMissingURL) {
		t.Errorf("Open(\"\") error = %v, want ErrMissingURL", err)
	}
}
