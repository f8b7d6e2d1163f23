package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "braced substitution",
			input: "addr: ${SENTRYD_ADDR}",
			env:   map[string]string{"SENTRYD_ADDR": ":9090"},
			want:  "addr: :9090",
		},
		{
			name:  "bare substitution",
			input: "addr: $SENTRYD_ADDR",
			env:   map[string]string{"SENTRYD_ADDR": ":9090"},
			want:  "addr: :9090",
		},
		{
			name:  "multiple substitutions in one line",
			input: "url: ${SCHEME}://${HOST}",
			env:   map[string]string{"SCHEME": "http", "HOST": "localhost:8080"},
			want:  "url: http://localhost:8080",
		},
		{
			name:  "missing variable expands to empty string",
			input: "token: ${SENTRYD_UNSET_TOKEN}",
			env:   map[string]string{},
			want:  "token: ",
		},
		{
			name:  "no variables is a no-op",
			input: "buffer_size: 100",
			env:   map[string]string{},
			want:  "buffer_size: 100",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			got := ExpandEnv([]byte(tc.input))
			assert.Equal(t, tc.want, string(got))
		})
	}
}
