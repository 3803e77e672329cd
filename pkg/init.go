package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/zuchzub/vcplayer/pkg/config"
	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/core/dl"
	"github.com/zuchzub/vcplayer/pkg/handlers"
	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	tg "github.com/amarnathcjd/gogram/telegram"
)

const (
	janitorEvery = 10 * time.Minute
	gateWindow   = 5 * time.Minute
	restoreLimit = 2 * time.Minute
)

// App is the running bot: its sessions, the assistants that stream them and the
// store that keeps queues across restarts.
type App struct {
	Registry    *vc.Registry
	Assistants  *vc.Assistants
	Checkpoints *db.CheckpointStore
	Gate        *cache.MessageGate
	Janitor     *dl.Janitor
}

// chatAdmins lists chat admins through the bot account.
type chatAdmins struct {
	client *tg.Client
}

func (c chatAdmins) ChatAdmins(_ context.Context, chatID int64) ([]int64, error) {
	admins, _, err := c.client.GetChatMembers(chatID, &tg.ParticipantOptions{
		Filter:           &tg.ChannelParticipantsAdmins{},
		SleepThresholdMs: 3000,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(admins))
	for _, a := range admins {
		if a != nil && a.User != nil {
			ids = append(ids, a.User.ID)
		}
	}
	return ids, nil
}

// startAssistants logs in every assistant session.
func startAssistants(a *vc.Assistants) error {
	for i, session := range config.Conf.SessionStrings {
		if _, err := a.StartClient(config.Conf.ApiId, config.Conf.ApiHash, session); err != nil {
			return fmt.Errorf("assistant %d: %w", i+1, err)
		}
	}
	return nil
}

// Init builds the playback stack around client and registers the command handlers.
// shutdown is called by /halt once every queue is saved.
func Init(client *tg.Client, shutdown func()) (*App, error) {
	if err := lang.LoadTranslations(); err != nil {
		return nil, err
	}

	assistants := vc.NewAssistants(db.Instance, config.Conf.BridgeDir)
	assistants.SetBot(client)
	if err := startAssistants(assistants); err != nil {
		return nil, err
	}

	site := &dl.YtDlp{Proxy: config.Conf.Proxy, Cookies: config.Conf.CookieFile}
	search := dl.NewSearch(site)
	router := &dl.Router{Site: site, Search: search, Direct: dl.Direct{}}
	ffmpeg := &dl.FFmpeg{}
	acquirer := dl.NewAcquirer(dl.AcquirerConfig{
		Dir:       config.Conf.DownloadsDir,
		Normalize: config.Conf.Normalize,
		Timeout:   config.Conf.AcquireTimeout,
	}, &dl.TelegramFetcher{Client: client}, router, ffmpeg, ffmpeg)

	notifier := handlers.NewNotifier(client, db.Instance, config.Conf.LoggerId, config.Conf.DeleteDelay)
	registry := vc.NewRegistry(vc.Deps{
		Transports: assistants,
		Media:      acquirer,
		Notifier:   notifier,
		Options: vc.Options{
			MaxQueueLength:  config.Conf.MaxQueueLength,
			PrefetchTimeout: config.Conf.PrefetchTimeout,
		},
	})
	janitor := dl.NewJanitor(config.Conf.DownloadsDir, registry)
	registry.SetJanitor(janitor)

	app := &App{
		Registry:    registry,
		Assistants:  assistants,
		Checkpoints: db.NewCheckpointStore(config.Conf.CheckpointFile),
		Gate:        cache.NewMessageGate(gateWindow),
		Janitor:     janitor,
	}

	h := handlers.New(handlers.Handlers{
		Registry:    registry,
		Assistants:  assistants,
		Resolver:    router,
		Search:      search,
		Admins:      cache.NewAdminCache(chatAdmins{client}, config.Conf.AdminCacheTTL),
		Gate:        app.Gate,
		Notifier:    notifier,
		Checkpoints: app.Checkpoints,
		Settings:    db.Instance,
		Shutdown:    shutdown,
	})
	handlers.LoadModules(client, h)
	return app, nil
}

// Restore rejoins the chats saved by the last /halt. The checkpoint is consumed.
func (a *App) Restore() {
	ctx, cancel := context.WithTimeout(context.Background(), restoreLimit)
	defer cancel()

	saved, err := a.Checkpoints.Take(ctx)
	if err != nil {
		gologging.WarnF("Reading saved queues: %v", err)
		return
	}
	if len(saved) == 0 {
		return
	}
	gologging.InfoF("Restoring %d saved queues", len(saved))
	if err := a.Registry.Restore(ctx, saved); err != nil {
		gologging.WarnF("Some queues could not be restored: %v", err)
	}
}

// RunMaintenance reclaims cache files and sweeps the duplicate gate until ctx ends.
func (a *App) RunMaintenance(ctx context.Context) {
	ticker := time.NewTicker(janitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Janitor.Reclaim()
			if err != nil {
				gologging.WarnF("Cache janitor: %v", err)
			} else if n > 0 {
				gologging.DebugF("Cache janitor removed %d files", n)
			}
			a.Gate.Sweep()
		}
	}
}

// Shutdown saves every queue, leaves all voice chats and logs the assistants out.
func (a *App) Shutdown(ctx context.Context) {
	if cps := a.Registry.Checkpoints(); len(cps) > 0 {
		if err := a.Checkpoints.Save(ctx, cps); err != nil {
			gologging.ErrorF("Saving queues: %v", err)
		}
	}
	if _, err := a.Registry.LeaveAll(ctx); err != nil {
		gologging.WarnF("Leaving voice chats: %v", err)
	}
	a.Assistants.StopAllClients()
}
