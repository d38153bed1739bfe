package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/RagePipe/internal/command"
	"github.com/BTreeMap/RagePipe/internal/genai"
	"github.com/BTreeMap/RagePipe/internal/inject"
	"github.com/BTreeMap/RagePipe/internal/lockfile"
	"github.com/BTreeMap/RagePipe/internal/messaging"
	"github.com/BTreeMap/RagePipe/internal/rage"
	"github.com/BTreeMap/RagePipe/internal/scheduler"
	"github.com/BTreeMap/RagePipe/internal/store"
	"github.com/BTreeMap/RagePipe/internal/trigger"
	"github.com/BTreeMap/RagePipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/RagePipe/internal/whatsapp"
)

// Messaging providers accepted by WithProvider.
const (
	ProviderWhatsApp = "whatsapp"
	ProviderTwilio   = "twilio"
	ProviderNone     = "none"
)

// DefaultJournalRetention is how long rage events are kept.
const DefaultJournalRetention = 30 * 24 * time.Hour

// Opts holds the settings of the running service.
type Opts struct {
	Addr             string
	Provider         string
	StateDir         string
	RageConfigPath   string
	Persona          string
	JournalRetention time.Duration
	JournalBuffer    int
	PruneCron        string
}

// Option configures Run.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithProvider selects the messaging transport: whatsapp, twilio or none.
func WithProvider(p string) Option {
	return func(o *Opts) { o.Provider = p }
}

// WithStateDir sets the directory holding the instance lock.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithRageConfig sets the TOML rage config path. It is re-read on SIGHUP.
func WithRageConfig(path string) Option {
	return func(o *Opts) { o.RageConfigPath = path }
}

// WithPersona sets the chat persona prompt.
func WithPersona(persona string) Option {
	return func(o *Opts) { o.Persona = persona }
}

// WithJournalRetention sets how long rage events are kept. Zero disables pruning.
func WithJournalRetention(d time.Duration) Option {
	return func(o *Opts) { o.JournalRetention = d }
}

// WithJournalBuffer sets the journal queue size.
func WithJournalBuffer(n int) Option {
	return func(o *Opts) { o.JournalBuffer = n }
}

// WithPruneCron sets the cron expression of the journal pruning job.
func WithPruneCron(expr string) Option {
	return func(o *Opts) { o.PruneCron = expr }
}

// ReloadConfig re-reads path and applies it to engine. The running config is
// kept when the file is invalid.
func ReloadConfig(engine *rage.Engine, path string) error {
	cfg, err := rage.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := engine.SetConfig(cfg); err != nil {
		return err
	}
	slog.Info("api.ReloadConfig: rage config reloaded", "path", path)
	return nil
}

// openStore opens the configured backend, or an in-memory store without a DSN.
func openStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("api.openStore: no database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	return store.Open(cfg.DSN)
}

// newMessagingService connects the selected transport. It returns a nil
// service and webhook for ProviderNone.
func newMessagingService(ctx context.Context, provider string, waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option) (messaging.Service, http.HandlerFunc, error) {
	switch provider {
	case ProviderNone:
		return nil, nil, nil
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(twOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc.TwilioWebhookHandler, nil
	case ProviderWhatsApp, "":
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging provider %q", provider)
	}
}

// Run wires the rage engine, its decay loop, the journal, the messaging
// pipeline and the HTTP API, and blocks until SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{
		Addr:             DefaultServerAddress,
		Provider:         ProviderWhatsApp,
		JournalRetention: DefaultJournalRetention,
		PruneCron:        scheduler.DefaultPruneCron,
	}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	if cfg.StateDir != "" {
		lock, err := lockfile.AcquireLock(cfg.StateDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				slog.Error("api.Run: failed to release lock", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rageCfg, err := rage.LoadConfig(cfg.RageConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load rage config: %w", err)
	}

	st, err := openStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	journal := store.NewJournal(st, cfg.JournalBuffer)
	journal.Start(ctx)
	defer journal.Close()

	engine, err := rage.NewEngine(rageCfg, rage.WithRecorder(journal))
	if err != nil {
		return err
	}

	decay := rage.NewDecayScheduler(engine)
	decay.SetOnCycle(func(r rage.CycleReport) {
		if r.Failed > 0 {
			slog.Warn("api.Run: decay cycle had failures", "failed", r.Failed, "decayed", r.Decayed)
		}
	})
	decay.Activate(ctx)
	defer decay.Stop()

	cron := scheduler.NewScheduler()
	defer cron.Stop()
	if err := cron.SchedulePrune(cfg.PruneCron, st, cfg.JournalRetention); err != nil {
		return err
	}

	msgService, webhook, err := newMessagingService(ctx, cfg.Provider, waOpts, twOpts)
	if err != nil {
		return err
	}
	if msgService != nil {
		if err := msgService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		defer msgService.Stop()

		rh := messaging.NewResponseHandler(msgService, st)
		history := messaging.NewHistory(messaging.DefaultHistoryLength)
		rh.AddHook("command", messaging.CreateCommandHook(command.NewHandler(engine), msgService, history))
		if gaClient, err := genai.NewClient(genaiOpts...); err != nil {
			slog.Warn("api.Run: GenAI client unavailable, chat replies disabled", "error", err)
		} else {
			rh.AddHook("chat", messaging.CreateChatHook(messaging.ChatDeps{
				Judge:      trigger.NewJudge(gaClient),
				Dispatcher: trigger.NewDispatcher(engine),
				Injector:   inject.New(engine),
				LLM:        gaClient,
				Persona:    cfg.Persona,
				History:    history,
			}, msgService))
		}
		rh.Start(ctx)
		defer rh.Wait()
	}

	go watchReload(ctx, engine, cfg.RageConfigPath)

	server := NewServer(engine, decay, st, webhook)
	slog.Info("api.Run: RagePipe running", "addr", cfg.Addr, "provider", cfg.Provider)
	err = server.ListenAndServe(ctx, cfg.Addr)
	stop()
	return err
}

// watchReload reloads the rage config on SIGHUP until ctx is done.
func watchReload(ctx context.Context, engine *rage.Engine, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := ReloadConfig(engine, path); err != nil {
				slog.Error("api.watchReload: reload failed, keeping current config", "path", path, "error", err)
			}
		}
	}
}
