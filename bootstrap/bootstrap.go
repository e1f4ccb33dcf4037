// Package bootstrap wires the kernel together: logger, configuration,
// resource providers, model definitions and transports.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	httpadapter "github.com/artpar/opkernel/adapters/http"
	"github.com/artpar/opkernel/adapters/hasher"
	"github.com/artpar/opkernel/adapters/idgen"
	"github.com/artpar/opkernel/adapters/metrics"
	"github.com/artpar/opkernel/adapters/rpc"
	"github.com/artpar/opkernel/config"
	"github.com/artpar/opkernel/core/dispatch"
	"github.com/artpar/opkernel/core/hooks"
	"github.com/artpar/opkernel/core/kernel"
	"github.com/artpar/opkernel/core/opview"
	"github.com/artpar/opkernel/core/registry"
	"github.com/artpar/opkernel/core/resource"
	"github.com/artpar/opkernel/core/schema"
	"github.com/artpar/opkernel/core/storage"
	"github.com/rs/zerolog"
)

// App holds the wired application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Registry   *registry.Registry
	Resolver   *resource.Resolver
	Compiler   *opview.Compiler
	Kernel     *kernel.Kernel
	Store      *storage.Store
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Collector
	HTTP       *httpadapter.Server
}

// Build assembles the application from configuration. It fails fast
// when model definitions exist but no resource provider is configured
// at any precedence level.
func Build(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	reg := registry.New()

	resolver := resource.NewResolver()
	registerProviders(resolver, cfg.Resources)

	h := hasher.NewBcrypt(10)
	compiler := opview.NewCompiler(reg.Lookup, reg.Model, h, hasher.GenerateRaw)
	store := storage.New(reg.Model, idgen.UUID{})
	hookReg := hooks.NewRegistry[kernel.HookFunc]()
	k := kernel.New(reg, compiler, hookReg, store, logger)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Resolver: resolver,
		Compiler: compiler,
		Kernel:   k,
		Store:    store,
	}

	if cfg.ModelsDir != "" {
		if _, err := os.Stat(cfg.ModelsDir); err == nil {
			models, err := schema.ParseDir(cfg.ModelsDir)
			if err != nil {
				return nil, fmt.Errorf("load models: %w", err)
			}
			if len(models) > 0 && !resolver.HasAny() {
				return nil, fmt.Errorf("%d model(s) defined but no resource provider configured", len(models))
			}
			for _, m := range models {
				if err := app.LoadModel(m); err != nil {
					return nil, err
				}
			}
		}
	}

	collector := metrics.New()
	dispatcher := dispatch.New(cfg.App.Name, reg, resolver, k, collector, logger)
	app.Metrics = collector
	app.Dispatcher = dispatcher

	server := httpadapter.NewServer(dispatcher, reg, logger)
	server.Mount("/rpc", rpc.NewHandler(dispatcher, logger))
	app.HTTP = server

	return app, nil
}

// LoadModel registers one model: operation specs, declarative hooks
// and its backing table.
func (a *App) LoadModel(m schema.Model) error {
	if !a.Resolver.HasAny() {
		return fmt.Errorf("model %q declared but no resource provider configured", m.Name)
	}

	if err := a.Registry.RegisterModel(m); err != nil {
		return fmt.Errorf("register model %q: %w", m.Name, err)
	}

	for _, decl := range m.Hooks {
		if err := a.registerDeclaredHook(m.Name, decl); err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
	}

	provider, err := a.Resolver.ResolveProvider(m.Name, m.Meta.API, "")
	if err != nil {
		return fmt.Errorf("resolve provider for %q: %w", m.Name, err)
	}
	handle, release, err := provider.Acquire(context.Background())
	if err != nil {
		return fmt.Errorf("acquire resource for %q: %w", m.Name, err)
	}
	defer release()

	if err := a.Store.EnsureTable(context.Background(), handle, m); err != nil {
		return fmt.Errorf("create table for %q: %w", m.Name, err)
	}

	a.Logger.Info().Str("model", m.Name).Int("fields", len(m.Fields)).Msg("model loaded")
	return nil
}

// registerDeclaredHook wires a YAML-declared hook into the kernel's
// hook registry. The "log" type emits a structured entry and never
// fails the pipeline.
func (a *App) registerDeclaredHook(model string, decl schema.HookDecl) error {
	phase := hooks.Phase(decl.Phase)
	ops := strings.Split(decl.Op, ",")
	for i := range ops {
		ops[i] = strings.TrimSpace(ops[i])
	}

	switch decl.Type {
	case "log":
		event := decl.Event
		if event == "" {
			event = model + ".changed"
		}
		logger := a.Logger
		fn := func(ctx context.Context, c *kernel.Context) error {
			logger.Info().
				Str("event", event).
				Str("model", c.Model).
				Str("op", c.Op).
				Str("id", c.Result.ID).
				Msg("declared hook fired")
			return nil
		}
		return a.Kernel.Hooks().Register(model, ops, phase, "log:"+event, fn)
	default:
		return fmt.Errorf("unknown hook type %q", decl.Type)
	}
}

// registerProviders applies the configured bindings to the resolver.
func registerProviders(r *resource.Resolver, res config.ResourcesConfig) {
	if res.Default != nil {
		r.RegisterDefault(*res.Default)
	}
	for api, spec := range res.APIs {
		r.RegisterAPI(api, spec)
	}
	for model, spec := range res.Tables {
		r.RegisterTable(model, spec)
	}
	for key, spec := range res.Ops {
		model, alias, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		r.RegisterOp(model, alias, spec)
	}
}

// SetupLogger builds the process logger from configuration.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Serve runs the HTTP server until the context is cancelled.
func (a *App) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      a.HTTP.Handler(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return a.Resolver.Close()
}
