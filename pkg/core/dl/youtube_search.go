package dl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppalone/ytsearch"
)

// Search resolves free text to the first YouTube result and leaves downloading to Fetch.
type Search struct {
	client *ytsearch.Client
	Fetch  Resolver
}

// NewSearch returns a search resolver that downloads through fetch.
func NewSearch(fetch Resolver) *Search {
	return &Search{client: ytsearch.NewClient(nil), Fetch: fetch}
}

// Resolve picks the first video result for query.
func (s *Search) Resolve(ctx context.Context, query string) (*Item, error) {
	items, err := s.Top(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// Top returns up to n video results for query.
func (s *Search) Top(ctx context.Context, query string, n int) ([]*Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrResolutionFailed)
	}

	res, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}
	var items []*Item
	for _, r := range res.Results {
		if r.VideoID == "" {
			continue
		}
		url := "https://www.youtube.com/watch?v=" + r.VideoID
		items = append(items, &Item{
			Prefix:   "YT",
			ID:       r.VideoID,
			Title:    r.Title,
			Duration: parseClock(r.Duration),
			URL:      url,
			Target:   url,
		})
		if len(items) == n {
			break
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no results for %q", ErrResolutionFailed, query)
	}
	return items, nil
}

// Download delegates to the site downloader.
func (s *Search) Download(ctx context.Context, item *Item, dest string) (string, error) {
	return s.Fetch.Download(ctx, item, dest)
}

// parseClock reads "m:ss" or "h:mm:ss" into seconds. Anything else is 0.
func parseClock(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
