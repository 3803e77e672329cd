package dl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// YtDlp resolves and downloads site links through the yt-dlp binary.
type YtDlp struct {
	Proxy   string
	Cookies func() string
}

func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoPlaylist()
	if y.Proxy != "" {
		cmd.Proxy(y.Proxy)
	}
	return cmd
}

func (y *YtDlp) extraArgs() []string {
	args := []string{"--socket-timeout", "10", "--retries", "2"}
	if y.Cookies != nil {
		if f := y.Cookies(); f != "" {
			args = append(args, "--cookies", f)
		}
	}
	return args
}

// keyPrefixes maps yt-dlp extractor keys to cache key namespaces.
var keyPrefixes = map[string]string{
	"youtube":    "YT",
	"soundcloud": "SC",
	"mixcloud":   "MC",
}

func prefixFor(extractor string) string {
	if p, ok := keyPrefixes[strings.ToLower(extractor)]; ok {
		return p
	}
	return "WEB"
}

// parsePrintLine reads the tab separated line produced by the resolve template.
func parsePrintLine(line string) (*Item, error) {
	ps := strings.Split(strings.TrimSpace(line), "\t")
	if len(ps) < 5 || ps[0] == "" || ps[0] == "NA" {
		return nil, fmt.Errorf("%w: unexpected yt-dlp output %q", ErrResolutionFailed, line)
	}
	dur, _ := strconv.ParseFloat(ps[2], 64)
	return &Item{
		Prefix:   prefixFor(ps[3]),
		ID:       ps[0],
		Title:    ps[1],
		Duration: int(dur),
		URL:      ps[4],
		Target:   ps[4],
	}, nil
}

// Resolve reads metadata for a site link without downloading it.
func (y *YtDlp) Resolve(ctx context.Context, url string) (*Item, error) {
	res, err := y.command().
		Print("%(id)s\t%(title)s\t%(duration)s\t%(extractor_key)s\t%(webpage_url)s").
		Run(ctx, append(y.extraArgs(), url)...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: yt-dlp timed out for %s", ErrResolutionFailed, url)
		}
		return nil, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	return parsePrintLine(lines[0])
}

// Download saves the best audio stream of item next to dest and returns the written path.
func (y *YtDlp) Download(ctx context.Context, item *Item, dest string) (string, error) {
	res, err := y.command().
		Format("bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio/best").
		Output(dest+".%(ext)s").
		NoPart().
		NoSimulate().
		Print("after_move:filepath").
		Run(ctx, append(y.extraArgs(), item.Target)...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: yt-dlp timed out for %s", ErrDownloadFailed, item.ID)
		}
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	path := strings.TrimSpace(res.Stdout)
	if i := strings.LastIndex(path, "\n"); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return "", fmt.Errorf("%w: no output path for %s", ErrDownloadFailed, item.ID)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return path, nil
}
