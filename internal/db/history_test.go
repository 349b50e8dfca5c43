package db

import (
	"context"
	"errors"
	"testing"
)

func TestClampLimit(t *testing.T) {
	testCases := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero uses default", limit: 0, want: DefaultListLimit},
		{name: "negative uses default", limit: -3, want: DefaultListLimit},
		{name: "within range", limit: 20, want: 20},
		{name: "at maximum", limit: MaxListLimit, want: MaxListLimit},
		{name: "above maximum", limit: MaxListLimit + 1, want: MaxListLimit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampLimit(tc.limit); got != tc.want {
				t.Errorf("ClampLimit(%d) = %d, want %d", tc.limit, got, tc.want)
			}
		})
	}
}

func TestInitWithoutURL(t *testing.T) {
	if err := Init(context.Background(), ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Init(\"\") = %v, want ErrNotConfigured", err)
	}
	if GetPool() != nil {
		t.Error("pool set without configuration")
	}
}

func TestInitRejectsBadURL(t *testing.T) {
	if err := Init(context.Background(), "postgres://%zz"); err == nil {
		t.Error("expected parse error")
	}
}
