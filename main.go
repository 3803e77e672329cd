package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zuchzub/vcplayer/pkg"
	"github.com/zuchzub/vcplayer/pkg/config"
	"github.com/zuchzub/vcplayer/pkg/core/db"

	"github.com/Laky-64/gologging"
	tg "github.com/amarnathcjd/gogram/telegram"
)

// handleFlood manages flood wait errors by pausing execution for the specified duration.
// It returns true if a flood wait error is handled, and false otherwise.
func handleFlood(err error) bool {
	if wait := tg.GetFloodWait(err); wait > 0 {
		gologging.InfoF("A flood wait has been detected. Sleeping for %ds.", wait)
		time.Sleep(time.Duration(wait) * time.Second)
		return true
	}
	return false
}

// main loads the configuration, connects the bot and the database, starts the assistants
// and runs until a signal or /halt arrives.
func main() {
	gologging.SetLevel(gologging.InfoLevel)

	if err := config.LoadConfig(); err != nil {
		gologging.Fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCtx, cancel := db.Ctx()
	err := db.InitDatabase(dbCtx)
	cancel()
	if err != nil {
		gologging.FatalF("Failed to connect to the database: %v", err)
	}

	cfg := tg.NewClientConfigBuilder(config.Conf.ApiId, config.Conf.ApiHash).
		WithSession("bot.dat").
		WithFloodHandler(handleFlood).
		Build()

	client, err := tg.NewClient(cfg)
	if err != nil {
		gologging.FatalF("Failed to create the client: %v", err)
	}
	if _, err = client.Conn(); err != nil {
		gologging.FatalF("Failed to connect to Telegram: %v", err)
	}
	if err = client.LoginBot(config.Conf.Token); err != nil {
		gologging.FatalF("Failed to log in as the bot: %v", err)
	}

	app, err := pkg.Init(client, stop)
	if err != nil {
		gologging.FatalF("Failed to initialize the package: %v", err)
	}
	go app.Restore()
	go app.RunMaintenance(ctx)

	gologging.InfoF("The bot is running as @%s.", client.Me().Username)
	if config.Conf.LoggerId != 0 {
		_, _ = client.SendMessage(config.Conf.LoggerId, "The bot has started!")
	}

	<-ctx.Done()
	gologging.Info("The bot is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	app.Shutdown(shutdownCtx)
	_ = client.Stop()
	if err := db.Instance.Close(shutdownCtx); err != nil {
		gologging.WarnF("Closing the database: %v", err)
	}
}
