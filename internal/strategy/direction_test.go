package strategy

import "testing"

func TestExtractContractID(t *testing.T) {
	const id = "f47ac10b-58cc-4372-a567-0e02b2c3d479"

	tests := []struct {
		name       string
		candidates []string
		want       string
	}{
		{
			name:       "instrument URL",
			candidates: []string{"https://api.robinhood.com/options/instruments/" + id + "/"},
			want:       id,
		},
		{
			name:       "strategy code suffix",
			candidates: []string{id + "_L1"},
			want:       id,
		},
		{
			name:       "uppercase hex",
			candidates: []string{"F47AC10B-58CC-4372-A567-0E02B2C3D479"},
			want:       "F47AC10B-58CC-4372-A567-0E02B2C3D479",
		},
		{
			name:       "first match wins",
			candidates: []string{"no-id-here", id + "_L1"},
			want:       id,
		},
		{
			name:       "no match",
			candidates: []string{"https://api.robinhood.com/options/instruments/latest/", "short_call"},
			want:       "",
		},
		{
			name:       "wrong variant nibble rejected",
			candidates: []string{"f47ac10b-58cc-4372-c567-0e02b2c3d479"},
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractContractID(tt.candidates...); got != tt.want {
				t.Errorf("extractContractID(%v) = %q, want %q", tt.candidates, got, tt.want)
			}
		})
	}
}
