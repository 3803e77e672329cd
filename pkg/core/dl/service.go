package dl

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrResolutionFailed = errors.New("nothing found")
	ErrDurationExceeded = errors.New("track is longer than allowed")
	ErrDownloadFailed   = errors.New("download failed")
	ErrTranscodeFailed  = errors.New("transcode failed")
	ErrUnsupportedLink  = errors.New("playlists and channels are not supported")
)

// Item is a resolved web track.
type Item struct {
	Prefix   string // Prefix namespaces the cache key, e.g. "YT".
	ID       string
	Title    string
	Duration int    // seconds, 0 when the source does not say
	URL      string // URL is the page users can open.
	Target   string // Target is what the downloader fetches.
}

// Resolver turns a link or a search query into an Item and fetches its media.
type Resolver interface {
	Resolve(ctx context.Context, input string) (*Item, error)
	Download(ctx context.Context, item *Item, dest string) (string, error)
}

// Fetcher downloads a file posted in a chat.
type Fetcher interface {
	Fetch(ctx context.Context, fileRef, dest string) (string, error)
}

// Transcoder converts any audio file to raw PCM.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string, normalize bool) error
}

// InputKind classifies what a user typed after /play.
type InputKind int

const (
	InputSearch InputKind = iota
	InputSite
	InputDirect
	InputExcluded
)

var (
	siteRe    = regexp.MustCompile(`^((?:https?:)?//)?((?:www|m|music)\.)?(youtube\.com|youtu\.be|soundcloud\.com|mixcloud\.com)(/)([-a-zA-Z0-9()@:%_+.~#?&/=]*)([\w\-]+)(\S+)?$`)
	excludeRe = regexp.MustCompile(`/channel/|/playlist\?list=|&list=|/sets/`)
	directRe  = regexp.MustCompile(`(?i)^https?://\S+\.(mp3|m4a|ogg|oga|opus|flac|wav|aac|webm)(\?\S*)?$`)
)

// Classify decides how input should be resolved.
func Classify(input string) InputKind {
	input = strings.TrimSpace(input)
	switch {
	case siteRe.MatchString(input) && excludeRe.MatchString(input):
		return InputExcluded
	case siteRe.MatchString(input):
		return InputSite
	case directRe.MatchString(input):
		return InputDirect
	default:
		return InputSearch
	}
}

// Router dispatches to the resolver matching the input kind.
type Router struct {
	Site   Resolver
	Search Resolver
	Direct Resolver
}

// Resolve resolves input with the matching backend.
func (r *Router) Resolve(ctx context.Context, input string) (*Item, error) {
	switch Classify(input) {
	case InputExcluded:
		return nil, ErrUnsupportedLink
	case InputSite:
		return r.Site.Resolve(ctx, input)
	case InputDirect:
		return r.Direct.Resolve(ctx, input)
	default:
		return r.Search.Resolve(ctx, input)
	}
}

// Download fetches item with the backend that produced it.
func (r *Router) Download(ctx context.Context, item *Item, dest string) (string, error) {
	if item.Prefix == directPrefix {
		return r.Direct.Download(ctx, item, dest)
	}
	return r.Site.Download(ctx, item, dest)
}
