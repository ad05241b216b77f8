package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"

	"github.com/kelter-antunes/chromara/internal/auth"
	"github.com/kelter-antunes/chromara/internal/config"
	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/events"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/hw/camera/fake"
	"github.com/kelter-antunes/chromara/internal/hw/camera/mediadev"
	"github.com/kelter-antunes/chromara/internal/hw/gpio"
	"github.com/kelter-antunes/chromara/internal/hw/surface"
	"github.com/kelter-antunes/chromara/internal/hw/tally"
	"github.com/kelter-antunes/chromara/internal/logic/capture"
	"github.com/kelter-antunes/chromara/internal/logic/geometry"
	"github.com/kelter-antunes/chromara/internal/logic/pipeline"
	"github.com/kelter-antunes/chromara/internal/logic/session"
	"github.com/kelter-antunes/chromara/internal/plugin"
	"github.com/kelter-antunes/chromara/internal/storage"
	"github.com/kelter-antunes/chromara/internal/storage/sqlite"
	"github.com/kelter-antunes/chromara/internal/telemetry"
	"github.com/kelter-antunes/chromara/internal/web"
)

const (
	appName = "chromara"
	appDesc = "camera capture core: preview, still capture, film look, gallery"
)

// runOptions are the command-line settings layered over the config file.
type runOptions struct {
	ConfigPath  string
	Mock        bool
	Count       int
	Interval    time.Duration
	MetricsAddr string
	Events      bool
}

func main() {
	app := cli.App(appName, appDesc)

	cfgPath := app.String(cli.StringOpt{
		Name:   "config",
		Desc:   "path to config file",
		EnvVar: "CHROMARA_CONFIG",
		Value:  filepath.Join(config.ConfigDir, "default.yaml"),
	})
	mock := app.Bool(cli.BoolOpt{
		Name:   "mock",
		Desc:   "use the simulated camera and mock GPIO",
		EnvVar: "CHROMARA_MOCK",
	})
	count := app.Int(cli.IntOpt{
		Name:   "count",
		Desc:   "number of photos to take",
		EnvVar: "CHROMARA_COUNT",
		Value:  1,
	})
	interval := app.String(cli.StringOpt{
		Name:   "interval",
		Desc:   "pause between photos",
		EnvVar: "CHROMARA_INTERVAL",
		Value:  "1s",
	})
	metricsAddr := app.String(cli.StringOpt{
		Name:   "metrics-addr",
		Desc:   "serve /metrics, /status and /events/stream on this address (empty disables)",
		EnvVar: "CHROMARA_METRICS_ADDR",
	})
	eventsOn := app.Bool(cli.BoolOpt{
		Name:   "events",
		Desc:   "print session events as JSON lines on stdout",
		EnvVar: "CHROMARA_EVENTS",
	})

	app.Action = func() {
		every, err := time.ParseDuration(*interval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --interval: %v\n", err)
			cli.Exit(2)
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err = run(ctx, runOptions{
			ConfigPath:  *cfgPath,
			Mock:        *mock,
			Count:       *count,
			Interval:    every,
			MetricsAddr: *metricsAddr,
			Events:      *eventsOn,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			cancel()
			cli.Exit(1)
		}
	}

	_ = app.Run(os.Args)
}

func run(ctx context.Context, opts runOptions) error {
	if opts.Count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", opts.Count)
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, opts)

	debug.Init(cfg.Defaults.DebugLevel)
	defer debug.Sync()
	debug.Section("Initialization")
	debug.Value("Config path", opts.ConfigPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock camera", cfg.Camera.Mock)

	shutdown, err := telemetry.Setup(ctx, telemetry.ServiceName, cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			debug.Error(fmt.Errorf("telemetry shutdown: %w", err))
		}
	}()

	debug.Step(1, "Opening storage")
	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}
	index, err := sqlite.Open(cfg.Storage.IndexPath)
	if err != nil {
		return err
	}
	defer index.Close()
	gallery := storage.NewGallery(storage.NewFileSink(cfg.Storage.Root, cfg.Storage.Prefix), index)
	debug.Value("Storage root", cfg.Storage.Root)
	debug.Value("Media index", cfg.Storage.IndexPath)

	debug.Step(2, "Initializing camera")
	provider := newProvider(cfg)
	grants, err := capabilities(cfg.Permissions.Granted)
	if err != nil {
		return err
	}
	authz := auth.NewStatic(cfg.Permissions.AutoGrant, grants...)

	debug.PrintStruct("Camera config", cfg.Camera)
	debug.PrintStruct("Pipeline config", cfg.Pipeline)
	worker := pipeline.NewWorker(newPipeline(cfg), 4)
	sess := session.New(session.Options{
		Provider:       provider,
		Auth:           authz,
		Processor:      worker,
		Sink:           gallery,
		RawEnabled:     cfg.Camera.RawEnabled,
		Rotation:       func() int { return cfg.Camera.Rotation },
		OpenTimeout:    cfg.OpenTimeout(),
		CaptureTimeout: cfg.CaptureTimeout(),
		JPEGSubfolder:  cfg.Storage.Subfolder,
		RawSubfolder:   cfg.Storage.RawSubfolder,
	})

	var bus *events.Bus
	if opts.Events {
		bus = events.NewBus()
		sess.Observe(events.SessionObserver(bus))
		debug.SetOutput(io.MultiWriter(os.Stderr, events.Writer(bus)))
		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()
		go printEvents(os.Stdout, ch)
	}

	if cfg.Tally.Enabled {
		debug.Step(3, "Initializing tally light")
		g, err := gpio.NewDriver(cfg.Tally.MockGPIO)
		if err != nil {
			return fmt.Errorf("init GPIO: %w", err)
		}
		defer func() {
			if err := g.Close(); err != nil {
				debug.Error(fmt.Errorf("close GPIO driver: %w", err))
			}
		}()
		sess.Observe(plugin.TallyObserver(tally.NewLight(g, cfg.Tally.Pin, 150*time.Millisecond)))
		debug.Value("Tally pin", cfg.Tally.Pin)
	}

	if opts.MetricsAddr != "" {
		srvCtx, stop := context.WithCancel(ctx)
		srv := web.NewServer(opts.MetricsAddr, bus, func() web.Status {
			return web.Status{Session: sess.ID(), State: string(sess.State())}
		})
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.Run(srvCtx); err != nil {
				debug.Error(fmt.Errorf("monitoring server: %w", err))
			}
		}()
		defer func() { stop(); <-served }()
	}

	plug := plugin.New(plugin.Options{
		Registry:   camera.NewRegistry(provider),
		Auth:       authz,
		Session:    sess,
		Loop:       surface.NewUILoop(),
		DeviceID:   cfg.Camera.DeviceID,
		PreviewMax: geometry.Size{Width: cfg.Camera.PreviewMaxWidth, Height: cfg.Camera.PreviewMaxHeight},
		Workers:    cfg.Defaults.Workers,
		Worker:     worker,
		Events:     bus,
	})
	defer plug.Destroy()

	debug.Section("Preview")
	if r := execute(ctx, plug, plugin.ActionShowPreview); !r.OK {
		return fmt.Errorf("%s: %s", r.Code, r.Message)
	}

	debug.Section("Capture")
	shots, burstErr := capture.NewSequence(plug).RunBurst(ctx, capture.BurstParams{
		Count:           opts.Count,
		Interval:        opts.Interval,
		ContinueOnError: true,
	})
	debug.Summary(fmt.Sprintf("Burst: %d of %d photos saved", saved(shots), opts.Count))
	for _, s := range shots {
		if s.Err != nil {
			debug.Info("Photo %d: %s %v", s.Index+1, plugin.Code(s.Err), s.Err)
			continue
		}
		fmt.Println(s.Result.JPEG.URI)
		if s.Result.RAW != nil {
			fmt.Println(s.Result.RAW.URI)
		}
	}

	if r := execute(context.Background(), plug, plugin.ActionRemovePreview); !r.OK {
		debug.Error(fmt.Errorf("remove preview: %s", r.Message))
	}
	debug.Section("Done")
	if burstErr != nil && !errors.Is(burstErr, context.Canceled) {
		return burstErr
	}
	return nil
}

// applyFlags lays the command-line switches over the loaded config.
func applyFlags(cfg *config.Config, opts runOptions) {
	if opts.Mock {
		cfg.Camera.Mock = true
		cfg.Tally.MockGPIO = true
	}
}

func saved(shots []capture.Shot) int {
	n := 0
	for _, s := range shots {
		if s.Err == nil {
			n++
		}
	}
	return n
}

func capabilities(names []string) ([]auth.Capability, error) {
	caps := make([]auth.Capability, 0, len(names))
	for _, n := range names {
		c, err := auth.ParseCapability(n)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// newProvider selects the simulated camera in mock mode and the
// mediadevices backend otherwise.
func newProvider(cfg *config.Config) camera.Provider {
	if cfg.Camera.Mock {
		return fake.New(fake.Options{FrameDivisor: 4},
			fake.Descriptor("0", geometry.Size{Width: 4000, Height: 3000}, cfg.Camera.RawEnabled))
	}
	return mediadev.New(mediadev.DefaultOptions())
}

func newPipeline(cfg *config.Config) *pipeline.Pipeline {
	p := pipeline.New()
	p.Grade = pipeline.Grade{
		Saturation: cfg.Pipeline.Saturation,
		Contrast:   cfg.Pipeline.Contrast,
		Offset:     cfg.Pipeline.Offset,
	}
	p.Halation = pipeline.Halation{
		Radius:  cfg.Pipeline.HalationRadius,
		Opacity: uint8(cfg.Pipeline.HalationOpacity),
	}
	p.Quality = cfg.Pipeline.JPEGQuality
	return p
}

// execute runs one host command and waits for its response.
func execute(ctx context.Context, p *plugin.Plugin, action string) plugin.Response {
	done := make(chan plugin.Response, 1)
	p.Execute(ctx, action, func(r plugin.Response) { done <- r })
	return <-done
}

func printEvents(w io.Writer, ch <-chan string) {
	for line := range ch {
		fmt.Fprintln(w, line)
	}
}
