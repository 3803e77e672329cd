package vc

import (
	"encoding/base64"
	"fmt"

	tg "github.com/amarnathcjd/gogram/telegram"
)

const (
	dcIDSize     = 1
	apiIDSize    = 4
	testModeSize = 1
	authKeySize  = 256
	userIDSize   = 8
	isBotSize    = 1

	pyrogramSessionSize = dcIDSize + apiIDSize + testModeSize + authKeySize + userIDSize + isBotSize
)

// pyrogramSession is the part of a Pyrogram session string gogram needs.
type pyrogramSession struct {
	dcID     int
	appID    int32
	testMode bool
	authKey  []byte
}

func parsePyrogramSession(encoded string) (*pyrogramSession, error) {
	for len(encoded)%4 != 0 {
		encoded += "="
	}

	packed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the base64 string: %w", err)
	}
	if len(packed) != pyrogramSessionSize {
		return nil, fmt.Errorf("unexpected data length: received %d, expected %d", len(packed), pyrogramSessionSize)
	}

	appID := int32(uint32(packed[1])<<24 | uint32(packed[2])<<16 | uint32(packed[3])<<8 | uint32(packed[4]))
	if appID < 0 {
		return nil, fmt.Errorf("the app ID is invalid: %d", appID)
	}
	return &pyrogramSession{
		dcID:     int(packed[0]),
		appID:    appID,
		testMode: packed[5] != 0,
		authKey:  packed[6 : 6+authKeySize],
	}, nil
}

// decodePyrogramSessionString converts a Pyrogram session string into a gogram session.
func decodePyrogramSessionString(encoded string) (*tg.Session, error) {
	s, err := parsePyrogramSession(encoded)
	if err != nil {
		return nil, err
	}
	return &tg.Session{
		Hostname: tg.ResolveDataCenterIP(s.dcID, s.testMode, false),
		AppID:    s.appID,
		Key:      s.authKey,
	}, nil
}

// assistantSession turns a configured session string into a gogram one. Pyrogram strings are
// converted; anything else is taken as a gogram string session.
func assistantSession(encoded string) string {
	if sess, err := decodePyrogramSessionString(encoded); err == nil {
		return sess.Encode()
	}
	return encoded
}
