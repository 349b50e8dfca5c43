package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"
)

func TestSentinelMatching(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{
			name:     "connection failed matches its sentinel",
			err:      NewConnectionFailedError("00:11:22:33:44:55", io.EOF),
			sentinel: ErrConnectionFailed,
			want:     true,
		},
		{
			name:     "wrapped permission error still matches",
			err:      fmt.Errorf("list devices: %w", NewPermissionDeniedError("bluetooth connect", nil)),
			sentinel: ErrPermissionDenied,
			want:     true,
		},
		{
			name:     "different codes do not match",
			err:      NewStreamError("s1", "read", io.EOF),
			sentinel: ErrConnectionFailed,
			want:     false,
		},
		{
			name:     "cause stays reachable",
			err:      NewStreamError("s1", "read", io.EOF),
			sentinel: io.EOF,
			want:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stderrors.Is(tc.err, tc.sentinel); got != tc.want {
				t.Errorf("errors.Is() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("translate: %w", NewTranslationFailedError("en", "zh", io.ErrUnexpectedEOF))
	if got := CodeOf(err); got != ErrorTranslationFailed {
		t.Errorf("CodeOf() = %q, want %q", got, ErrorTranslationFailed)
	}
	if got := CodeOf(io.EOF); got != "" {
		t.Errorf("CodeOf(io.EOF) = %q, want empty", got)
	}
}

func TestToMap(t *testing.T) {
	m := NewConnectionFailedError("AA:BB", io.EOF).ToMap()
	if m["error_code"] != string(ErrorConnectionFailed) {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["address"] != "AA:BB" {
		t.Errorf("address = %v", m["address"])
	}
	if m["cause"] != io.EOF.Error() {
		t.Errorf("cause = %v", m["cause"])
	}
}
