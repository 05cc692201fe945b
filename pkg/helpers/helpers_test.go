package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	h := New()
	out := h.Sanitize(`<p onclick="x()">Hi <script>alert(1)</script><b>there</b></p>`)
	assert.Equal(t, `<p>Hi <b>there</b></p>`, out)
}

func TestStripTags(t *testing.T) {
	h := New()
	assert.Equal(t, "Hi there", h.StripTags(`<p>Hi <b>there</b></p>`))
}

func TestTruncate(t *testing.T) {
	h := New()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 6, "hél..."},
		{"hello", 2, "he"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.Truncate(tt.in, tt.n), tt.in)
	}
}

func TestDefault(t *testing.T) {
	h := New()
	var nilMap map[string]any
	var nilPtr *int

	assert.Equal(t, "x", h.Default(nil, "x"))
	assert.Equal(t, "x", h.Default("", "x"))
	assert.Equal(t, "x", h.Default(nilMap, "x"))
	assert.Equal(t, "x", h.Default(nilPtr, "x"))
	assert.Equal(t, "v", h.Default("v", "x"))
	assert.Equal(t, 0, h.Default(0, "x"))
}

func TestJoinAndFuncMap(t *testing.T) {
	h := New()
	assert.Equal(t, "a, b, 3", h.Join([]any{"a", "b", 3}, ", "))
	assert.Equal(t, "solo", h.Join("solo", ","))

	fm := h.FuncMap()
	assert.Contains(t, fm, "sanitize")
	assert.Contains(t, fm, "truncate")
}
