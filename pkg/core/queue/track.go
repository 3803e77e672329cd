package queue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Origin tells the acquirer where a track's bytes come from.
type Origin uint8

const (
	// ChatUpload tracks are audio files posted in the chat.
	ChatUpload Origin = iota + 1
	// WebSearch tracks were resolved from a link or a search query.
	WebSearch
)

func (o Origin) String() string {
	switch o {
	case ChatUpload:
		return "upload"
	case WebSearch:
		return "web"
	default:
		return "unknown"
	}
}

// Track is one queueable item. Fields are fixed once the track is built.
type Track struct {
	Origin      Origin `json:"origin"`
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
	CacheKey    string `json:"cache_key"`
	Locator     string `json:"locator"`
	Link        string `json:"link,omitempty"`
	AddedBy     int64  `json:"added_by"`
	AddedByName string `json:"added_by_name,omitempty"`
	// Limit is the duration ceiling in seconds the requester was entitled to; 0 disables it.
	Limit int `json:"limit,omitempty"`
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// sanitizeKey keeps cache keys usable as file names.
func sanitizeKey(s string) string {
	return strings.Trim(unsafeKeyChars.ReplaceAllString(s, "-"), "-")
}

// NewUpload builds a track for an audio file posted in the chat.
// docID is the platform's stable document id; fileRef is what the downloader needs.
func NewUpload(docID int64, fileRef, title string, duration int, link string, addedBy int64) *Track {
	return &Track{
		Origin:   ChatUpload,
		Title:    title,
		Duration: duration,
		CacheKey: "TG_" + strconv.FormatInt(docID, 10),
		Locator:  fileRef,
		Link:     link,
		AddedBy:  addedBy,
	}
}

// NewWeb builds a track for a resolved web item. prefix names the source ("YT", "SC", "WEB").
func NewWeb(prefix, itemID, title string, duration int, url string, addedBy int64) *Track {
	return &Track{
		Origin:   WebSearch,
		Title:    title,
		Duration: duration,
		CacheKey: strings.ToUpper(sanitizeKey(prefix)) + "_" + sanitizeKey(itemID),
		Locator:  url,
		Link:     url,
		AddedBy:  addedBy,
	}
}

// WithRequester returns a copy of t attributed to another user. Used when restoring.
func (t *Track) WithRequester(userID int64, name string) *Track {
	c := *t
	c.AddedBy = userID
	c.AddedByName = name
	return &c
}

// Valid reports whether the track can be acquired.
func (t *Track) Valid() error {
	switch {
	case t == nil:
		return fmt.Errorf("nil track")
	case t.Origin != ChatUpload && t.Origin != WebSearch:
		return fmt.Errorf("track %q: unknown origin %d", t.Title, t.Origin)
	case t.CacheKey == "" || sanitizeKey(t.CacheKey) != t.CacheKey:
		return fmt.Errorf("track %q: bad cache key %q", t.Title, t.CacheKey)
	case t.Locator == "":
		return fmt.Errorf("track %q: empty locator", t.Title)
	case t.Duration < 0:
		return fmt.Errorf("track %q: negative duration", t.Title)
	}
	return nil
}
