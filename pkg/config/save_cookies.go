package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Laky-64/gologging"
)

var tmpDir = "cookies"

var (
	cookieClient = &http.Client{Timeout: 30 * time.Second}
	cookiesMu    sync.RWMutex
)

// CookieFile returns the first downloaded cookie file, or "" when none is available yet.
func (c *BotConfig) CookieFile() string {
	cookiesMu.RLock()
	defer cookiesMu.RUnlock()
	if len(c.CookiesPath) == 0 {
		return ""
	}
	return c.CookiesPath[0]
}

// rawPasteURL maps a Pastebin or Batbin share link to its raw endpoint.
func rawPasteURL(url string) string {
	parts := strings.Split(strings.Trim(url, "/"), "/")
	id := parts[len(parts)-1]
	if strings.Contains(url, "pastebin.com") {
		return fmt.Sprintf("https://pastebin.com/raw/%s", id)
	}
	return fmt.Sprintf("https://batbin.me/raw/%s", id)
}

// fetchContent downloads a cookie file from Pastebin or Batbin.
func fetchContent(url string) (string, error) {
	rawURL := rawPasteURL(url)
	resp, err := cookieClient.Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body from %s: %w", rawURL, err)
	}
	return string(body), nil
}

// cookieFileName derives a stable file name for a cookie URL.
func cookieFileName(url string) string {
	parts := strings.Split(strings.Trim(url, "/"), "/")
	name := parts[len(parts)-1]
	if name == "" {
		name = "file_" + strings.ReplaceAll(strings.Split(strings.ReplaceAll(url, "/", "_"), "?")[0], "#", "")
	}
	return name + ".txt"
}

// saveContent writes content into tmpDir and returns the file path.
func saveContent(url, content string) (string, error) {
	filePath := filepath.Join(tmpDir, cookieFileName(url))
	// #nosec G304
	if err := os.WriteFile(filePath, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	return filePath, nil
}

// saveAllCookies downloads all URLs and stores paths in Conf.CookiesPath.
func saveAllCookies(urls []string) {
	for _, url := range urls {
		content, err := fetchContent(url)
		if err != nil {
			gologging.WarnF("[Config] Cookie fetch failed: %v", err)
			continue
		}

		path, err := saveContent(url, content)
		if err != nil {
			gologging.WarnF("[Config] Cookie save failed: %v", err)
			continue
		}

		cookiesMu.Lock()
		Conf.CookiesPath = append(Conf.CookiesPath, path)
		cookiesMu.Unlock()
	}
}
