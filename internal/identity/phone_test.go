// ABOUTME: Tests for channel address normalization
// ABOUTME: Table-driven coverage of country-code heuristics and rejection bounds

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare ten digits gets NANP prefix", input: "2345678901", want: "12345678901"},
		{name: "formatted US number", input: "(234) 567-8901", want: "12345678901"},
		{name: "us with country code", input: "+1 234 567 8901", want: "12345678901"},
		{name: "india with country code", input: "+91 98765 43210", want: "919876543210"},
		{name: "international passthrough", input: "4915112345678", want: "4915112345678"},
		{name: "fifteen digits accepted", input: "123456789012345", want: "123456789012345"},
		{name: "too short", input: "12345", wantErr: true},
		{name: "sixteen digits rejected", input: "1234567890123456", wantErr: true},
		{name: "no digits at all", input: "hello", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
