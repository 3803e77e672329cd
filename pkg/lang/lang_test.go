package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTranslations(t *testing.T) {
	require.NoError(t, LoadTranslations())
	assert.Contains(t, GetAvailableLangs(), DefaultLang)
	assert.Equal(t, "English", GetLangDisplayName(DefaultLang))
	assert.Equal(t, "Unknown", GetLangDisplayName("xx"))
}

func TestGetStringFallsBack(t *testing.T) {
	require.NoError(t, LoadTranslations())

	assert.Equal(t, GetString(DefaultLang, "queue_empty"), GetString("xx", "queue_empty"))
	assert.Equal(t, "no_such_key", GetString(DefaultLang, "no_such_key"))
}

func TestFormat(t *testing.T) {
	require.NoError(t, LoadTranslations())

	assert.Equal(t, GetString(DefaultLang, "queue_finished"), Format(DefaultLang, "queue_finished"))
	assert.Contains(t, Format(DefaultLang, "setmax_success", 25), "25")
}
