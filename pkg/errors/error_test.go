package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TemplateError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(CodeInvalidConfig, "invalid configuration"),
			expected: "INVALID_CONFIG: invalid configuration",
		},
		{
			name:     "error with engine",
			err:      New(CodeEngineMissing, "install a plugin").WithEngine("genshi"),
			expected: "ENGINE_MISSING: install a plugin (engine: genshi)",
		},
		{
			name:     "error with cause",
			err:      Wrap(CodePluginLoadFailed, "load pongo2", fmt.Errorf("boom")),
			expected: "PLUGIN_LOAD_FAILED: load pongo2: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTemplateError_Is(t *testing.T) {
	err := Newf(CodeEngineNotConfigured, "no engine with name %q configured", "kid")
	assert.True(t, errors.Is(err, ErrEngineNotConfigured))
	assert.False(t, errors.Is(err, ErrEngineMissing))

	wrapped := fmt.Errorf("render: %w", err)
	assert.True(t, errors.Is(wrapped, ErrEngineNotConfigured))
	assert.Equal(t, CodeEngineNotConfigured, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestTemplateError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := New(CodeCacheNotConfigured, "file cache").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestTemplateError_Builders(t *testing.T) {
	err := New(CodeTemplateNotFound, "missing").
		WithEngine("gohtml").
		WithTemplate("index.html").
		WithMetadata("root", "/templates")

	assert.Equal(t, "gohtml", err.Engine)
	assert.Equal(t, "index.html", err.Template)
	assert.Equal(t, "/templates", err.Metadata["root"])
}

func TestTemplateError_MarshalJSON(t *testing.T) {
	err := Wrap(CodeInvalidCacheExpire, "bad expire", errors.New("parse error")).WithEngine("gotext")
	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "INVALID_CACHE_EXPIRE", out["code"])
	assert.Equal(t, "gotext", out["engine"])
	assert.Equal(t, "parse error", out["cause_message"])
}

func TestGetErrorCodeInfo(t *testing.T) {
	info := GetErrorCodeInfo(CodeNamespaceRequired)
	assert.Equal(t, "render", info.Category)
	assert.True(t, info.UserFacing)

	assert.Equal(t, "plugin", GetCategory(CodeDependencyNotFound))
	assert.Equal(t, "unknown", GetCategory("NOPE"))
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.True(t, m.IsEmpty())
	assert.NoError(t, m.ErrorOrNil())

	m.Add(nil)
	assert.True(t, m.IsEmpty())

	m.Add(ErrCacheNotConfigured)
	assert.Equal(t, ErrCacheNotConfigured.Error(), m.Error())

	m.Add(errors.New("second"))
	err := m.ErrorOrNil()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors")
	assert.True(t, errors.Is(err, ErrCacheNotConfigured))
}
