package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DELAY", "12")
	assert.Equal(t, 12*time.Second, getEnvDuration("TEST_DELAY", time.Second))

	t.Setenv("TEST_DELAY", "1m30s")
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DELAY", time.Second))

	t.Setenv("TEST_DELAY", "soon")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DELAY", time.Second))

	t.Setenv("TEST_DELAY", "")
	assert.Equal(t, 3*time.Second, getEnvDuration("TEST_DELAY", 3*time.Second))
}

func TestGetSessionStrings(t *testing.T) {
	t.Setenv("SESS1", " first ")
	t.Setenv("SESS3", "third")
	assert.Equal(t, []string{"first", "third"}, getSessionStrings("SESS", 4))
}

func TestProcessCookieURLs(t *testing.T) {
	got := processCookieURLs("https://pastebin.com/a, https://batbin.me/b  https://batbin.me/c")
	assert.Equal(t, []string{"https://pastebin.com/a", "https://batbin.me/b", "https://batbin.me/c"}, got)
	assert.Empty(t, processCookieURLs(""))
}

func TestRawPasteURL(t *testing.T) {
	assert.Equal(t, "https://pastebin.com/raw/abc", rawPasteURL("https://pastebin.com/abc/"))
	assert.Equal(t, "https://batbin.me/raw/xyz", rawPasteURL("https://batbin.me/xyz"))
	assert.Equal(t, "xyz.txt", cookieFileName("https://batbin.me/xyz"))
}

func validConfig(t *testing.T) *BotConfig {
	dir := t.TempDir()
	return &BotConfig{
		ApiId:             1,
		ApiHash:           "hash",
		Token:             "token",
		SessionStrings:    []string{"s"},
		MongoUri:          "mongodb://localhost",
		DbName:            "VCPlayer",
		LoggerId:          -100,
		DownloadsDir:      dir + "/downloads",
		BridgeDir:         dir + "/bridge",
		MaxQueueLength:    8,
		MaxDurationAdmin:  10800,
		MaxDurationMember: 900,
	}
}

func TestValidate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := validConfig(t)
		require.NoError(t, c.validate())
		assert.DirExists(t, c.DownloadsDir)
		assert.DirExists(t, c.BridgeDir)
	})

	t.Run("reports every missing key", func(t *testing.T) {
		c := validConfig(t)
		c.ApiId = 0
		c.Token = ""
		c.MongoUri = ""
		err := c.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API_ID, TOKEN, MONGO_URI")
	})

	t.Run("needs an assistant", func(t *testing.T) {
		c := validConfig(t)
		c.SessionStrings = nil
		assert.Error(t, c.validate())
	})

	t.Run("member limit above admin limit", func(t *testing.T) {
		c := validConfig(t)
		c.MaxDurationMember = c.MaxDurationAdmin + 1
		assert.Error(t, c.validate())
	})
}

func TestIsDev(t *testing.T) {
	c := &BotConfig{DEVS: []int64{1, 2}}
	assert.True(t, c.IsDev(2))
	assert.False(t, c.IsDev(3))
}
