package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inchinet/nativespeaker/internal/api"
	"github.com/inchinet/nativespeaker/internal/bus"
	"github.com/inchinet/nativespeaker/internal/capability"
	"github.com/inchinet/nativespeaker/internal/config"
	"github.com/inchinet/nativespeaker/internal/narration"
	"github.com/inchinet/nativespeaker/internal/natsserver"
	"github.com/inchinet/nativespeaker/internal/stt"
	"github.com/inchinet/nativespeaker/internal/translate"
	"github.com/inchinet/nativespeaker/internal/tts"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	telemetry     *telemetry
	natsServer    *natsserver.EmbeddedServer
	bus           *bus.Client
	controller    *narration.Controller
	service       *narration.Service
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel
	metricsHandler := tel.Handler()

	if err := r.startBus(ctx); err != nil {
		r.shutdown()
		return err
	}
	if err := r.startNarration(ctx); err != nil {
		r.shutdown()
		return err
	}

	routerMetrics := metricsHandler
	if r.cfg.Telemetry.PrometheusBind != "" {
		routerMetrics = nil
		r.metricsServer = r.serve("metrics", r.cfg.Telemetry.PrometheusBind, metricsHandler)
	}
	handler := api.NewRouter(api.Options{
		Narrator:       r.controller,
		Logger:         r.logger,
		AllowedOrigins: r.cfg.HTTP.AllowedOrigins,
		Metrics:        routerMetrics,
		Ready:          r.isReady,
	})
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = r.serve("http", addr, handler)

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		r.logger.Info("message bus disabled")
		return nil
	}
	ns, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	r.natsServer = ns

	busCfg := r.cfg.Bus
	if ns != nil {
		busCfg.Servers = []string{ns.ClientURL()}
	}
	client, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return err
	}
	r.bus = client
	return nil
}

func (r *Runtime) startNarration(ctx context.Context) error {
	synth, err := tts.New(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("init tts: %w", err)
	}
	recognizer, err := stt.New(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("init stt: %w", err)
	}

	opts := narration.OptionsFromConfig(r.cfg)
	opts.Logger = r.logger
	opts.Translator = translate.NewGateway(r.cfg.Translation, r.logger)
	opts.Synthesizer = synth
	opts.Recognizer = recognizer

	if r.bus != nil {
		opts.Sink = tts.NewBusSink(r.bus, r.cfg.TTS.Target)
		opts.Source = stt.NewBusSource(r.bus.Conn(), r.cfg.STT.Device, r.logger)
		opts.OnTranscript = narration.TranscriptPublisher(r.bus, r.cfg.STT.Language, r.logger)
	} else {
		opts.Sink = tts.NewFileSink(filepath.Join(r.cfg.Export.Directory, "speech.wav"))
	}

	opts.Capabilities = capability.Probe(r.cfg, opts.Source != nil)
	if err := capability.RegisterMetrics(r.telemetry.Meter("capability"), opts.Capabilities); err != nil {
		r.logger.Warn("failed to register capability metrics", slog.String("error", err.Error()))
	}
	r.logger.Info("capabilities probed",
		slog.String("synthesis", opts.Capabilities.Synthesis.Status.String()),
		slog.String("recognition", opts.Capabilities.Recognition.Status.String()),
	)

	r.controller = narration.New(ctx, opts)
	if r.bus != nil {
		r.service = narration.NewService(ctx, r.bus, r.controller)
		if err := r.service.Start(); err != nil {
			return fmt.Errorf("start narration service: %w", err)
		}
	}
	return nil
}

func (r *Runtime) serve(name, addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(name+" server failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}

// shutdown tears components down in reverse start order. It tolerates
// partially started runtimes.
func (r *Runtime) shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.service != nil {
		r.service.Close()
	}
	if r.controller != nil {
		r.controller.Close()
	}
	r.bus.Close()
	r.natsServer.Shutdown()

	if err := r.telemetry.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	if r.service != nil && !r.service.Healthy() {
		return false
	}
	return true
}
