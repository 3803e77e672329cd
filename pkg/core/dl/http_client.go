package dl

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/Laky-64/gologging"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	maxRetries            = 3
	initialBackoff        = 1 * time.Second
	directPrefix          = "WEB"
)

var client = &http.Client{
	Transport: &http.Transport{
		TLSHandshakeTimeout:   defaultConnectTimeout,
		ResponseHeaderTimeout: defaultRequestTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
	},
}

// sendRequest performs a body-less HTTP request, retrying temporary network errors and 5xx answers
// with exponential backoff.
func sendRequest(ctx context.Context, method, fullURL string) (*http.Response, error) {
	var reqErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
		req.Header.Set("Accept", "*/*")

		resp, err := client.Do(req)
		if err == nil {
			if resp.StatusCode < 500 {
				return resp, nil
			}
			_ = resp.Body.Close()
			reqErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			continue
		}
		reqErr = err
		if !isTemporaryError(err) {
			break
		}
		gologging.InfoF("[HTTP] Temporary error on attempt %d/%d: %v", attempt+1, maxRetries, err)
	}

	return nil, fmt.Errorf("request failed: %w", reqErr)
}

// isTemporaryError determines if an error is worth retrying.
func isTemporaryError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// Direct handles plain links to audio files.
type Direct struct{}

func urlKey(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:8])
}

// titleFromURL uses the Content-Disposition filename, or the last path element.
func titleFromURL(rawURL, contentDisp string) string {
	if contentDisp != "" {
		if _, params, err := mime.ParseMediaType(contentDisp); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "/" && name != "." {
			if unescaped, err := url.PathUnescape(name); err == nil {
				return unescaped
			}
			return name
		}
	}
	return rawURL
}

// Resolve checks the link answers and names it. The duration is unknown until the file is probed.
func (Direct) Resolve(ctx context.Context, rawURL string) (*Item, error) {
	resp, err := sendRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		return nil, fmt.Errorf("%w: status %d for %s", ErrResolutionFailed, resp.StatusCode, rawURL)
	}

	return &Item{
		Prefix: directPrefix,
		ID:     urlKey(rawURL),
		Title:  titleFromURL(rawURL, resp.Header.Get("Content-Disposition")),
		URL:    rawURL,
		Target: rawURL,
	}, nil
}

// Download streams the file to dest through a .part file.
func (Direct) Download(ctx context.Context, item *Item, dest string) (string, error) {
	resp, err := sendRequest(ctx, http.MethodGet, item.Target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status code %d", ErrDownloadFailed, resp.StatusCode)
	}

	ext := path.Ext(titleFromURL(item.Target, resp.Header.Get("Content-Disposition")))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = ".bin"
	}
	fileName := dest + ext
	if err := writeToFile(fileName+".part", resp.Body); err != nil {
		_ = os.Remove(fileName + ".part")
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := os.Rename(fileName+".part", fileName); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return fileName, nil
}

// writeToFile writes data from an io.Reader to a specified file.
func writeToFile(filename string, data io.Reader) error {
	// #nosec G304
	out, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create the file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, data); err != nil {
		return fmt.Errorf("failed to write to the file: %w", err)
	}
	return nil
}
