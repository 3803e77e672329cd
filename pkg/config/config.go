package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Laky-64/gologging"
	"github.com/joho/godotenv"
)

// BotConfig holds the configuration for the bot.
type BotConfig struct {
	ApiId          int32    // ApiId is the Telegram API ID.
	ApiHash        string   // ApiHash is the Telegram API hash.
	Token          string   // Token is the bot token used for the command surface.
	SessionStrings []string // SessionStrings are the assistant session strings.
	MongoUri       string   // MongoUri is the MongoDB connection string.
	DbName         string   // DbName is the name of the database.
	OwnerId        int64    // OwnerId is the user ID of the bot owner.
	LoggerId       int64    // LoggerId is the chat that receives operator logs.
	Proxy          string   // Proxy is passed to yt-dlp.
	DownloadsDir   string   // DownloadsDir holds the raw PCM cache files.
	BridgeDir      string   // BridgeDir holds the named pipes read by the audio bridge.
	CheckpointFile string   // CheckpointFile is where queues are saved on /halt.
	DEVS           []int64  // DEVS is a list of global admin user IDs.
	CookiesPath    []string // CookiesPath is a list of paths to cookies files.
	cookiesUrl     []string // cookiesUrl is a list of URLs to cookies files.

	MaxQueueLength    int           // MaxQueueLength is the default per-chat queue limit.
	MaxDurationAdmin  int           // MaxDurationAdmin is the track length limit for moderators, in seconds.
	MaxDurationMember int           // MaxDurationMember is the track length limit for members, in seconds.
	DeleteDelay       time.Duration // DeleteDelay is how long transient replies stay in the chat.
	PrefetchTimeout   time.Duration // PrefetchTimeout bounds the wait for a not yet resident track.
	AcquireTimeout    time.Duration // AcquireTimeout bounds a single download and transcode.
	AdminCacheTTL     time.Duration // AdminCacheTTL is how long chat admin lists are trusted.
	Normalize         bool          // Normalize enables loudness normalization while transcoding.
}

// Conf is the global configuration for the bot.
var Conf *BotConfig

// LoadConfig loads the configuration from environment variables and sets the global Conf.
// It also validates the configuration and saves cookies if provided.
func LoadConfig() error {
	_ = godotenv.Load()

	Conf = &BotConfig{
		ApiId:             getEnvInt32("API_ID", 0),
		ApiHash:           os.Getenv("API_HASH"),
		Token:             os.Getenv("TOKEN"),
		SessionStrings:    getSessionStrings("STRING", 10),
		MongoUri:          os.Getenv("MONGO_URI"),
		DbName:            getEnvStr("DB_NAME", "VCPlayer"),
		OwnerId:           getEnvInt64("OWNER_ID", 0),
		LoggerId:          getEnvInt64("LOGGER_ID", 0),
		Proxy:             os.Getenv("PROXY"),
		DownloadsDir:      getEnvStr("DOWNLOADS_DIR", "downloads"),
		BridgeDir:         getEnvStr("BRIDGE_DIR", "bridge"),
		CheckpointFile:    getEnvStr("CHECKPOINT_FILE", "playlists.json"),
		cookiesUrl:        processCookieURLs(os.Getenv("COOKIES_URL")),
		MaxQueueLength:    int(getEnvInt64("MAX_QUEUE_LENGTH", 8)),
		MaxDurationAdmin:  int(getEnvInt64("MAX_DURATION_ADMIN", 10800)),
		MaxDurationMember: int(getEnvInt64("MAX_DURATION_MEMBER", 900)),
		DeleteDelay:       getEnvDuration("DELETE_DELAY", 8*time.Second),
		PrefetchTimeout:   getEnvDuration("PREFETCH_TIMEOUT", 2*time.Minute),
		AcquireTimeout:    getEnvDuration("ACQUIRE_TIMEOUT", 5*time.Minute),
		AdminCacheTTL:     getEnvDuration("ADMIN_CACHE_TTL", 30*time.Minute),
		Normalize:         getEnvBool("NORMALIZE_AUDIO", true),
	}

	devsEnv := os.Getenv("DEVS")
	if devsEnv != "" {
		for _, idStr := range strings.Fields(devsEnv) {
			if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
				Conf.DEVS = append(Conf.DEVS, id)
			}
		}
	}
	if Conf.OwnerId != 0 && !containsInt(Conf.DEVS, Conf.OwnerId) {
		Conf.DEVS = append(Conf.DEVS, Conf.OwnerId)
	}

	if err := Conf.validate(); err != nil {
		return err
	}

	if len(Conf.cookiesUrl) > 0 {
		if err := os.MkdirAll(tmpDir, 0750); err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}

		gologging.InfoF("[Config] Saving %d cookie file(s)...", len(Conf.cookiesUrl))
		go saveAllCookies(Conf.cookiesUrl)
	}
	return nil
}

// IsDev reports whether userID is a global admin.
func (c *BotConfig) IsDev(userID int64) bool {
	return containsInt(c.DEVS, userID)
}
