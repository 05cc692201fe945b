package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Gettext(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Set("de", "Hello", "Hallo"))

	de := c.Translator("de")
	assert.Equal(t, "Hallo", de.Gettext("Hello"))
	assert.Equal(t, "Goodbye", de.Gettext("Goodbye"))
	assert.Equal(t, "de", de.Language())
}

func TestCatalog_Ngettext(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.SetPlural("en", "%d file", "%d file", "%d files"))

	en := c.Translator("en")
	assert.Equal(t, "1 file", en.Ngettext("%d file", "%d files", 1))
	assert.Equal(t, "3 files", en.Ngettext("%d file", "%d files", 3))

	assert.Equal(t, "apple", en.Ngettext("apple", "apples", 1))
	assert.Equal(t, "apples", en.Ngettext("apple", "apples", 2))
}

func TestCatalog_BadLanguage(t *testing.T) {
	c := NewCatalog()
	assert.Error(t, c.Set("!!", "a", "b"))
	assert.Equal(t, "en", c.Translator("!!").Language())
}

func TestNull(t *testing.T) {
	tr := Null()
	assert.Equal(t, "x", tr.Gettext("x"))
	assert.Equal(t, "one", tr.Ngettext("one", "many", 1))
	assert.Equal(t, "many", tr.Ngettext("one", "many", 0))
	assert.Equal(t, "marked", Noop("marked"))
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		policy  string
		want    []byte
		wantErr bool
	}{
		{name: "utf-8 passthrough", charset: "utf-8", want: []byte("café ☺")},
		{name: "latin1 strict fails", charset: "iso-8859-1", policy: "strict", wantErr: true},
		{name: "latin1 replace", charset: "iso-8859-1", policy: "replace", want: []byte("caf\xe9 \x1a")},
		{name: "latin1 charref", charset: "iso-8859-1", policy: "xmlcharrefreplace", want: []byte("caf\xe9 &#9786;")},
		{name: "latin1 ignore", charset: "latin1", policy: "ignore", want: []byte("caf\xe9 ")},
		{name: "unknown charset", charset: "klingon", wantErr: true},
		{name: "unknown policy", charset: "latin1", policy: "shrug", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode("café ☺", tt.charset, tt.policy)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCharset(t *testing.T) {
	name, err := Charset("UTF8")
	require.NoError(t, err)
	assert.Equal(t, "utf-8", name)

	_, err = Charset("nope")
	assert.Error(t, err)
}
