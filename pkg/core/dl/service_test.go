package dl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]InputKind{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":               InputSite,
		"youtu.be/dQw4w9WgXcQ":                                      InputSite,
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=10":            InputSite,
		"https://soundcloud.com/artist/track-name":                  InputSite,
		"https://www.mixcloud.com/someone/a-mix/":                   InputSite,
		"https://www.youtube.com/playlist?list=PL123":               InputExcluded,
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123":    InputExcluded,
		"https://www.youtube.com/channel/UC123abc":                  InputExcluded,
		"https://soundcloud.com/artist/sets/album":                  InputExcluded,
		"https://example.com/music/song.mp3":                        InputDirect,
		"https://example.com/a.FLAC?token=1":                        InputDirect,
		"never gonna give you up":                                   InputSearch,
		"https://example.com/page":                                  InputSearch,
	}
	for in, want := range cases {
		assert.Equal(t, want, Classify(in), in)
	}
}

func TestParsePrintLine(t *testing.T) {
	it, err := parsePrintLine("abc\tA Song\t212.5\tYoutube\thttps://www.youtube.com/watch?v=abc\n")
	require.NoError(t, err)
	assert.Equal(t, "YT", it.Prefix)
	assert.Equal(t, 212, it.Duration)
	assert.Equal(t, "A Song", it.Title)

	it, err = parsePrintLine("123\tmix\tNA\tMixcloud\thttps://mixcloud.com/x/y")
	require.NoError(t, err)
	assert.Equal(t, "MC", it.Prefix)
	assert.Zero(t, it.Duration)

	_, err = parsePrintLine("garbage")
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestParseClock(t *testing.T) {
	assert.Equal(t, 200, parseClock("3:20"))
	assert.Equal(t, 3920, parseClock("1:05:20"))
	assert.Zero(t, parseClock("LIVE"))
	assert.Zero(t, parseClock("12"))
}

func TestTranscodeArgs(t *testing.T) {
	args := transcodeArgs("in.webm", "out.raw", true)
	assert.Contains(t, args, loudnormFilter)
	assert.Equal(t, "out.raw", args[len(args)-1])
	assert.Contains(t, args, "s16le")
	assert.Contains(t, args, "48000")

	assert.NotContains(t, transcodeArgs("in", "out", false), loudnormFilter)
}

func TestParseProbe(t *testing.T) {
	d, err := parseProbe([]byte(`{"format":{"duration":"183.42"}}`))
	require.NoError(t, err)
	assert.Equal(t, 183, d)

	d, err = parseProbe([]byte(`{"format":{}}`))
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = parseProbe([]byte(`nope`))
	assert.Error(t, err)
}

func TestDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/track.mp3":
			_, _ = w.Write([]byte("ID3 audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	it, err := Direct{}.Resolve(ctx, srv.URL+"/track.mp3")
	require.NoError(t, err)
	assert.Equal(t, "track.mp3", it.Title)
	assert.Equal(t, directPrefix, it.Prefix)
	assert.Len(t, it.ID, 16)

	dest := filepath.Join(t.TempDir(), ".src-WEB_x")
	p, err := Direct{}.Download(ctx, it, dest)
	require.NoError(t, err)
	assert.Equal(t, dest+".mp3", p)
	b, _ := os.ReadFile(p)
	assert.Equal(t, "ID3 audio", string(b))

	_, err = Direct{}.Resolve(ctx, srv.URL+"/missing.mp3")
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

type namedResolver struct{ name string }

func (n namedResolver) Resolve(context.Context, string) (*Item, error) {
	return &Item{Prefix: n.name}, nil
}

func (n namedResolver) Download(context.Context, *Item, string) (string, error) {
	return n.name, nil
}

func TestRouter(t *testing.T) {
	r := &Router{Site: namedResolver{"site"}, Search: namedResolver{"search"}, Direct: namedResolver{directPrefix}}
	ctx := context.Background()

	it, _ := r.Resolve(ctx, "https://youtu.be/dQw4w9WgXcQ")
	assert.Equal(t, "site", it.Prefix)
	it, _ = r.Resolve(ctx, "lofi beats")
	assert.Equal(t, "search", it.Prefix)
	_, err := r.Resolve(ctx, "https://www.youtube.com/playlist?list=PL1")
	assert.ErrorIs(t, err, ErrUnsupportedLink)

	p, _ := r.Download(ctx, &Item{Prefix: directPrefix}, "x")
	assert.Equal(t, directPrefix, p)
	p, _ = r.Download(ctx, &Item{Prefix: "YT"}, "x")
	assert.Equal(t, "site", p)
}
