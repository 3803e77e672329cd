package lang

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/Laky-64/gologging"
)

//go:embed locale/*.json
var locales embed.FS

// DefaultLang is used for chats without a language and for missing keys.
const DefaultLang = "en"

var (
	mu           sync.RWMutex
	translations = make(map[string]map[string]string)
)

// LoadTranslations reads every embedded locale file. It is safe to call more than once.
func LoadTranslations() error {
	files, err := fs.Glob(locales, "locale/*.json")
	if err != nil {
		return err
	}

	loaded := make(map[string]map[string]string, len(files))
	for _, name := range files {
		data, err := locales.ReadFile(name)
		if err != nil {
			return err
		}
		var langMap map[string]string
		if err := json.Unmarshal(data, &langMap); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		langCode := strings.TrimSuffix(path.Base(name), ".json")
		loaded[langCode] = langMap
		gologging.DebugF("Loaded language: %s", langCode)
	}
	if _, ok := loaded[DefaultLang]; !ok {
		return fmt.Errorf("locale %q is missing", DefaultLang)
	}

	mu.Lock()
	translations = loaded
	mu.Unlock()
	return nil
}

func GetString(langCode, key string) string {
	mu.RLock()
	defer mu.RUnlock()
	if lang, ok := translations[langCode]; ok {
		if val, ok := lang[key]; ok {
			return val
		}
	}
	// Fallback to English
	if lang, ok := translations[DefaultLang]; ok {
		if val, ok := lang[key]; ok {
			return val
		}
	}
	return key
}

// Format looks up key and fills it with args.
func Format(langCode, key string, args ...any) string {
	s := GetString(langCode, key)
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}

func GetAvailableLangs() []string {
	mu.RLock()
	defer mu.RUnlock()
	langs := make([]string, 0, len(translations))
	for k := range translations {
		langs = append(langs, k)
	}
	sort.Strings(langs)
	return langs
}

func GetLangDisplayName(langCode string) string {
	mu.RLock()
	defer mu.RUnlock()
	if lang, ok := translations[langCode]; ok {
		if val, ok := lang["lang_name"]; ok {
			return val
		}
	}

	return "Unknown"
}
