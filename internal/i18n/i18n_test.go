package i18n

import (
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := Load("en")
	require.NoError(t, err)

	en := c.Printer(language.English)
	assert.Equal(t, "User list", en.T("user.listTitle"))
	assert.Equal(t, "No user found", en.T("user.noUserFound"))
	assert.Equal(t, "Showing 1-7 of 20", en.T("user.list.range", 1, 7, 20))

	id := c.Printer(language.Indonesian)
	assert.Equal(t, "Pengguna tidak ditemukan", id.T("user.noUserFound"))
}

func TestCatalogsDefineTheSameKeys(t *testing.T) {
	c, err := Load("en")
	require.NoError(t, err)
	for key := range c.keys[language.English] {
		assert.True(t, c.Has(language.Indonesian, key), "id catalog misses %s", key)
	}
}

func TestMatch(t *testing.T) {
	c, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, language.English, c.Match(""))
	assert.Equal(t, language.English, c.Match("fr-FR,fr;q=0.9"))
	assert.Equal(t, language.Indonesian, c.Match("id-ID,id;q=0.9,en;q=0.5"))
	assert.Equal(t, language.English, c.Match("en-GB"))
}

func TestForRequest(t *testing.T) {
	c, err := Load("en")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/users", nil)
	req.Header.Set("Accept-Language", "id")
	p := c.ForRequest(req)
	assert.Equal(t, "id", p.Lang())
	assert.Equal(t, "Daftar pengguna", p.T("user.listTitle"))
}

func TestUnknownKeyFallsBackToKey(t *testing.T) {
	c, err := Load("en")
	require.NoError(t, err)
	assert.Equal(t, "user.missing", c.Printer(language.English).T("user.missing"))
	assert.Equal(t, "x", Printer{}.T("x"))
}

func TestLoadFSErrors(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{}, "en")
	assert.Error(t, err)

	_, err = LoadFS(fstest.MapFS{"locales/id.yaml": {Data: []byte("a: b\n")}}, "en")
	assert.ErrorContains(t, err, "fallback")

	_, err = LoadFS(fstest.MapFS{"locales/en.yaml": {Data: []byte("- not a map")}}, "en")
	assert.ErrorContains(t, err, "parse")
}
