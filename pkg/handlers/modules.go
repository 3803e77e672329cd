package handlers

import (
	"context"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/core/dl"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

var startTime = time.Now()

// Settings is the per-chat configuration store.
type Settings interface {
	LangSource
	GetMaxQueue(ctx context.Context, chatID int64, def int) int
	SetMaxQueue(ctx context.Context, chatID int64, n int) error
	AddChat(ctx context.Context, chatID int64) error
	AddUser(ctx context.Context, userID int64) error
	Counts(ctx context.Context) (chats, users int64, err error)
}

// ItemResolver turns /play input into a web item.
type ItemResolver interface {
	Resolve(ctx context.Context, input string) (*dl.Item, error)
}

// Searcher lists the best matches of a query.
type Searcher interface {
	Top(ctx context.Context, query string, n int) ([]*dl.Item, error)
}

// Handlers is the command surface. Every dependency is injected by the caller.
type Handlers struct {
	Registry    *vc.Registry
	Assistants  *vc.Assistants
	Resolver    ItemResolver
	Search      Searcher
	Admins      *cache.AdminCache
	Gate        *cache.MessageGate
	Notifier    *Notifier
	Checkpoints *db.CheckpointStore
	Settings    Settings
	// Shutdown stops the process after /halt saved the queues.
	Shutdown func()

	searches *cache.Cache[searchResult]
	reloads  *cache.Cache[time.Time]
}

// New returns handlers using the dependencies in h.
func New(h Handlers) *Handlers {
	h.searches = cache.NewCache[searchResult](10 * time.Minute)
	h.reloads = cache.NewCache[time.Time](reloadCooldown)
	return &h
}

// LoadModules registers every command and callback of h on c.
func LoadModules(c *telegram.Client, h *Handlers) {
	_, _ = c.UpdatesGetState()

	c.On("command:ping", h.pingHandler)
	c.On("command:start", h.startHandler)
	c.On("command:help", h.helpHandler)

	c.On("command:play", h.playHandler, telegram.FilterFunc(h.inGroup))
	c.On("command:search", h.searchHandler, telegram.FilterFunc(h.inGroup))
	c.On("command:current", h.currentHandler, telegram.FilterFunc(h.inGroup))
	c.On("command:queue", h.queueHandler, telegram.FilterFunc(h.inGroup))
	c.On("command:skip", h.skipHandler, telegram.FilterFunc(h.inGroup))

	c.On("command:join", h.joinHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:leave", h.leaveHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:stop", h.stopHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:replay", h.replayHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:pause", h.pauseHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:resume", h.resumeHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:mute", h.muteHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:unmute", h.unmuteHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:setmax", h.setMaxHandler, telegram.FilterFunc(h.moderatorOnly))
	c.On("command:reload", h.reloadAdminCacheHandler, telegram.FilterFunc(h.inGroup))

	c.On("command:leaveall", h.leaveAllHandler, telegram.FilterFunc(isDev))
	c.On("command:vc", h.activeVcHandler, telegram.FilterFunc(isDev))
	c.On("command:clean", h.cleanHandler, telegram.FilterFunc(isDev))
	c.On("command:halt", h.haltHandler, telegram.FilterFunc(isDev))
	c.On("command:stats", h.sysStatsHandler, telegram.FilterFunc(isDev))

	c.On("callback:play_\\w+", h.playCallbackHandler)
	c.On("callback:pick_\\d+", h.pickCallbackHandler)
	c.On("callback:vcplay_\\w+", h.vcPlayHandler)
	c.On("callback:help_\\w+", h.helpCallbackHandler)

	c.On(telegram.OnParticipant, h.handleParticipant)
	c.AddRawHandler(&telegram.UpdateNewChannelMessage{}, h.handleVoiceChat)
	gologging.Debug("Handlers loaded successfully.")
}
