package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr string
	}{
		{input: "", want: 0},
		{input: "0", want: 0},
		{input: "16B", want: 16},
		{input: "4096", want: 4096},
		{input: " 1MiB ", want: 1 << 20},
		{input: "1mib", want: 1 << 20},
		{input: "1.5KiB", want: 1536},
		{input: "64MiB", want: 64 << 20},
		{input: "2MB", want: 2_000_000},
		{input: "3GB", want: 3_000_000_000},
		{input: "1TiB", want: 1 << 40},
		{input: "MiB", wantErr: "invalid size"},
		{input: "one megabyte", wantErr: "invalid size"},
		{input: "-16", wantErr: "must be non-negative"},
		{input: "-2MiB", wantErr: "must be non-negative"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseSize(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"", 0},
		{"5MB/s", 5_000_000},
		{"100KB/s", 100_000},
		{"10MiB/s", 10_485_760},
		{"1024", 1024},
		{"5mb/S", 5_000_000},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseRate(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRate_Invalid(t *testing.T) {
	for _, input := range []string{"abc", "-1MB/s", "fast/s"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRate(input)
			assert.Error(t, err)
		})
	}
}
