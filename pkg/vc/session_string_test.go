package vc

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packSession(dc byte, appID uint32, test bool) string {
	var b bytes.Buffer
	b.WriteByte(dc)
	b.Write([]byte{byte(appID >> 24), byte(appID >> 16), byte(appID >> 8), byte(appID)})
	if test {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
	b.Write(bytes.Repeat([]byte{0xAB}, authKeySize))
	b.Write(make([]byte, userIDSize))
	b.WriteByte(0)
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b.Bytes()), "=")
}

func TestParsePyrogramSession(t *testing.T) {
	s, err := parsePyrogramSession(packSession(4, 123456, false))
	require.NoError(t, err)
	assert.Equal(t, 4, s.dcID)
	assert.Equal(t, int32(123456), s.appID)
	assert.False(t, s.testMode)
	assert.Len(t, s.authKey, authKeySize)
	assert.Equal(t, byte(0xAB), s.authKey[0])
}

func TestParsePyrogramSessionRejectsBadInput(t *testing.T) {
	_, err := parsePyrogramSession("!!not base64!!")
	assert.Error(t, err)

	_, err = parsePyrogramSession(base64.URLEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "unexpected data length")

	_, err = parsePyrogramSession(packSession(2, 0x80000000, false))
	assert.ErrorContains(t, err, "app ID is invalid")
}

func TestAssistantSessionPassesGogramStringsThrough(t *testing.T) {
	assert.Equal(t, "1BvX-gogram-session", assistantSession("1BvX-gogram-session"))

	pyro := packSession(2, 123456, false)
	converted := assistantSession(pyro)
	assert.NotEmpty(t, converted)
	assert.NotEqual(t, pyro, converted)
}
