package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"clipsync/internal/account"
	"clipsync/internal/clip"
	"clipsync/internal/config"
	"clipsync/internal/discovery"
	"clipsync/internal/httpx"
	"clipsync/internal/locales"
	"clipsync/internal/media"
	"clipsync/internal/notify"
	"clipsync/internal/publish"
	"clipsync/internal/runner"
	"clipsync/internal/storage"
	"clipsync/internal/tiktok"
	"clipsync/internal/youtube"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	library *clip.Library

	closers []func()
}

// configFlag registers the --config flag on fs.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to clipsync.yaml (default: ./clipsync.yaml or ~/.config/clipsync/clipsync.yaml)")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openApp loads configuration and opens the account store.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, library: clip.NewLibrary(cfg.OutputDir, logger)}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	})
	return a, nil
}

// withApp opens the app, runs fn and closes the app. A failure is printed
// and exits with status 1.
func withApp(configPath string, fn func(ctx context.Context, a *app) error) {
	ctx, cancel := signalContext()
	a, err := openApp(ctx, configPath)
	if err != nil {
		cancel()
		fatalf("%v", err)
	}
	err = fn(ctx, a)
	a.Close()
	cancel()
	if err != nil {
		fatalf("%v", err)
	}
}

// Close releases everything opened by the app in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Store.Backend == "mongo" {
		s, err := storage.ConnectMongo(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.NewJSONStore(cfg.AccountsDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) locker(ctx context.Context) (storage.Locker, error) {
	if a.cfg.Lock.Backend != "redis" {
		if err := os.MkdirAll(a.cfg.AccountsDir, 0755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
		return storage.NewFileLocker(a.cfg.AccountsDir, a.cfg.Lock.Timeout), nil
	}
	client, err := storage.ConnectRedis(ctx, a.cfg.Lock.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return storage.NewRedisLocker(client, a.cfg.Lock.TTL), nil
}

// sources returns the video lister used for discovery and the title source
// used for captions.
func (a *app) sources(ctx context.Context) (youtube.VideoLister, youtube.TitleSource, error) {
	policy := a.cfg.RetryPolicy()
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		a.logger.Debug("retrying yt-dlp", "attempt", attempt, "wait", wait, "error", err)
	}
	ytdlp := youtube.NewYtdlpLister(a.cfg.YtdlpPath, a.cfg.YtdlpTimeout, policy)
	metadata := &youtube.YtdlpMetadata{Path: a.cfg.YtdlpPath, Timeout: a.cfg.YtdlpTimeout, RetryConfig: &policy}
	if a.cfg.Discovery.Source != "api" {
		return ytdlp, metadata, nil
	}

	api, err := youtube.NewAPILister(ctx, a.cfg.Discovery.YouTubeAPIKey, a.cfg.Discovery.QuotaReserve,
		httpx.NewClient(httpx.DefaultConfig()), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("youtube api: %w", err)
	}
	api.SetFallbackLister(ytdlp)
	return api, api, nil
}

func (a *app) localizer() (*locales.Localizer, error) {
	bundle, err := locales.Load(a.logger)
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}
	return bundle.Localizer(a.cfg.Publish.CaptionLanguage), nil
}

func (a *app) pipeline(loc *locales.Localizer) *media.Pipeline {
	return &media.Pipeline{
		Editor: &media.FFmpeg{
			Path:      a.cfg.FFmpegPath,
			ProbePath: a.cfg.FFprobePath,
			Encoder:   a.cfg.VideoEncoder,
			FontFile:  a.cfg.FontFile,
		},
		Downloader:   youtube.NewDownloader(a.cfg.YtdlpPath, a.cfg.YtdlpTimeout),
		Transcripts:  &youtube.TranscriptFetcher{YtdlpPath: a.cfg.YtdlpPath, Timeout: a.cfg.YtdlpTimeout},
		Library:      a.library,
		TempDir:      a.cfg.TempDir,
		SecondaryDir: a.cfg.SecondaryContentDir,
		PartLabel:    loc.PartLabel,
		Logger:       a.logger,
	}
}

func (a *app) notifier() (notify.Notifier, error) {
	if a.cfg.Notify.TelegramToken == "" {
		return notify.Nop{}, nil
	}
	tg, err := notify.NewTelegram(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID, a.logger,
		notify.WithHTTPClient(httpx.NewClient(httpx.DefaultConfig())))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return tg, nil
}

// agents opens a browser uploader per account. New sessions are saved to the
// store as soon as they are captured.
func (a *app) agents() runner.AgentFactory {
	cfg := tiktok.Config{
		UploadURL: a.cfg.Publish.UploadURL,
		LoginURL:  a.cfg.Publish.LoginURL,
		Headless:  a.cfg.Publish.Headless,
		ExecPath:  a.cfg.Publish.ChromePath,
		Timeout:   a.cfg.Publish.Timeout,
	}
	return func(ctx context.Context, acct *account.Account) (publish.Agent, func(), error) {
		u, err := tiktok.Open(ctx, cfg, acct, a.store.Save, promptLogin, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return u, u.Close, nil
	}
}

// planner returns a runner that can only plan. It needs no collaborators.
func (a *app) planner() *runner.Runner {
	return &runner.Runner{
		Env:     runner.Env{Logger: a.logger, Horizon: a.cfg.Horizon()},
		Store:   a.store,
		Library: a.library,
	}
}

// runner wires every collaborator needed for a full run.
func (a *app) runner(ctx context.Context) (*runner.Runner, error) {
	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := a.localizer()
	if err != nil {
		return nil, err
	}
	lister, titles, err := a.sources(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := a.notifier()
	if err != nil {
		return nil, err
	}

	r := a.planner()
	r.Locker = locker
	r.Discovery = discovery.New(lister, a.cfg.Discovery.ChannelListingLimit, a.cfg.Discovery.RequestsPerSecond, a.logger)
	r.Producer = a.pipeline(loc)
	r.Agents = a.agents()
	r.Captioner = &publish.Captioner{
		Titles:   titles,
		Labels:   loc,
		Hashtags: a.cfg.Publish.CaptionHashtags,
		Logger:   a.logger,
	}
	r.Notifier = notifier
	r.Messages = loc
	return r, nil
}

// initSentry starts error reporting. An empty DSN disables sending.
func (a *app) initSentry() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         a.cfg.SentryDSN,
		Environment: a.cfg.Environment,
	})
	if err != nil {
		a.logger.Warn("sentry init failed", "error", err)
		return
	}
	a.closers = append(a.closers, func() { sentry.Flush(2 * time.Second) })
}

func reportFailure(rep runner.Report) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("account", rep.AccountID)
		scope.SetTag("run_id", rep.RunID)
		sentry.CaptureException(rep.Err)
	})
}

// promptLogin waits for the operator to press Enter after logging in.
func promptLogin(ctx context.Context, accountID string) error {
	fmt.Fprintf(os.Stderr, "Log in as %s in the browser window, then press Enter...\n", accountID)
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(os.Stdin).ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
