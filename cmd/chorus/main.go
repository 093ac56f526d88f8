// Command chorus is the main entry point for the chorus song-request bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chorus/internal/app"
	"github.com/MrWong99/chorus/internal/config"
	discordbot "github.com/MrWong99/chorus/internal/discord"
	"github.com/MrWong99/chorus/internal/discord/commands"
	"github.com/MrWong99/chorus/internal/observe"
	discordtransport "github.com/MrWong99/chorus/pkg/transport/discord"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "chorus.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file with secrets")
	watch := flag.Bool("watch", true, "reload log level, default provider and DJ role when the config file changes")
	flag.Parse()

	// ── Environment and configuration ─────────────────────────────────────────
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "chorus: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chorus: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chorus: %v\n", err)
		}
		return 1
	}
	if cfg.Discord.Token == "" {
		fmt.Fprintf(os.Stderr, "chorus: no Discord token, set %s or discord.token\n", config.EnvDiscordToken)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("chorus starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "chorus",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Discord ───────────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:    cfg.Discord.Token,
		GuildID:  cfg.Discord.GuildID,
		DJRoleID: cfg.Discord.DJRole,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	tr := discordtransport.New(bot.Session(),
		discordtransport.WithDecoder(discordtransport.FFmpegDecoder(cfg.Discord.FFmpegPath)),
		discordtransport.WithBitrate(cfg.Discord.Bitrate),
	)
	announcer := discordbot.NewAnnouncer(bot.Session())

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg,
		app.WithTransport(tr),
		app.WithNotifier(announcer),
		app.WithLeaver(tr),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = bot.Close()
		return 1
	}

	music, err := commands.NewMusicCommands(commands.MusicConfig{
		Dispatcher: application.Dispatcher(),
		Providers:  application.Providers(),
		Default:    cfg.Providers.Default,
		History:    application.History(),
		Perms:      bot.Permissions(),
		Directory:  bot,
		Voice:      tr,
		Announcer:  announcer,
		Metrics:    application.Metrics(),
		Timeout:    cfg.Cache.RetrieveTimeout + 30*time.Second,
	})
	if err != nil {
		slog.Error("failed to set up commands", "err", err)
		_ = bot.Close()
		return 1
	}
	music.Register(bot.Router())

	// ── Hot reload ────────────────────────────────────────────────────────────
	var watcher *config.Watcher
	if *watch {
		watcher, err = config.NewWatcher(*configPath, func(_, _ *config.Config, diff config.ConfigDiff) {
			applyReload(diff, &level, music, bot.Permissions())
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		}
	}

	printStartupSummary(cfg)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	g.Go(func() error { return bot.Run(gctx) })

	slog.Info("chorus ready, press Ctrl+C to shut down")
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if watcher != nil {
		watcher.Stop()
	}
	if err := tr.Close(shutdownCtx); err != nil {
		slog.Warn("voice transport close error", "err", err)
	}
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	code := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	slog.Info("goodbye")
	return code
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// defaultSetter switches the default provider.
type defaultSetter interface {
	SetDefaultProvider(name string) error
}

// roleSetter changes the DJ role.
type roleSetter interface {
	SetRole(roleID string)
}

func applyReload(diff config.ConfigDiff, level *slog.LevelVar, music defaultSetter, perms roleSetter) {
	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("config reload: log level changed", "level", diff.NewLogLevel)
	}
	if diff.DefaultProviderChanged {
		if err := music.SetDefaultProvider(diff.NewDefaultProvider); err != nil {
			slog.Warn("config reload: default provider not applied", "err", err)
		} else {
			slog.Info("config reload: default provider changed", "provider", diff.NewDefaultProvider)
		}
	}
	if diff.DJRoleChanged {
		perms.SetRole(diff.NewDJRole)
		slog.Info("config reload: DJ role changed", "role", diff.NewDJRole)
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config reload: some changes need a restart", "sections", diff.RestartRequired)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         chorus startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	for _, e := range cfg.Providers.Entries {
		name := e.Name
		if name == cfg.Providers.Default {
			name += " (default)"
		}
		printRow("Provider", name)
	}
	printRow("Cache", string(cfg.Cache.Backend))
	if cfg.Cache.DownloadBaseURL != "" {
		printRow("Downloads", cfg.Cache.DownloadBaseURL)
	}
	if cfg.Cache.YTDLP.Enabled {
		printRow("yt-dlp", "enabled")
	}
	if cfg.History.PostgresDSN != "" {
		printRow("History", "postgres")
	} else {
		printRow("History", "memory")
	}
	if cfg.Queue.MaxPending > 0 {
		printRow("Max pending", fmt.Sprint(cfg.Queue.MaxPending))
	} else {
		printRow("Max pending", "unbounded")
	}
	if cfg.Discord.GuildID != "" {
		printRow("Guild", cfg.Discord.GuildID)
	} else {
		printRow("Guild", "(global commands)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-11s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
