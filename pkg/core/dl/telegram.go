package dl

import (
	"context"
	"fmt"
	"os"

	tg "github.com/amarnathcjd/gogram/telegram"
)

// TelegramFetcher downloads chat uploads with the bot account.
type TelegramFetcher struct {
	Client *tg.Client
}

// Fetch resolves a bot file id and downloads it to dest.
func (f *TelegramFetcher) Fetch(ctx context.Context, fileRef, dest string) (string, error) {
	file, err := tg.ResolveBotFileID(fileRef)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	type result struct {
		path string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := f.Client.DownloadMedia(file, &tg.DownloadOptions{FileName: dest})
		done <- result{p, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = os.Remove(r.path)
			}
		}()
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrDownloadFailed, r.err)
		}
		return r.path, nil
	}
}
