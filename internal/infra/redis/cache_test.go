package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_KeyNamespacing(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"powershare", "powershare:stats:item:42"},
		{"powershare:", "powershare:stats:item:42"},
		{"", "stats:item:42"},
	}

	for _, tt := range tests {
		c := NewCache(nil, tt.prefix)
		assert.Equal(t, tt.want, c.key("stats:item:42"), "prefix %q", tt.prefix)
	}
}
