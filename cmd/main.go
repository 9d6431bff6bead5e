package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/adam-ce/cesium/featureflag"
	"github.com/adam-ce/cesium/geometry"
	cesiumhttp "github.com/adam-ce/cesium/http"
	"github.com/adam-ce/cesium/inspector"
	"github.com/adam-ce/cesium/provider"
	"github.com/adam-ce/cesium/providers/ellipsoid"
	"github.com/adam-ce/cesium/providers/mbtiles"
	"github.com/adam-ce/cesium/quadtree"
	"github.com/adam-ce/cesium/retry"
	"github.com/adam-ce/cesium/smoketest"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// The cesium version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "cesium_info",
		Help:        "Cesium information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr                    string        `cli:""        env:"CESIUM_ADDR"                       help:"Listening address for the inspector and the API."`
	AdminAddr               string        `cli:""        env:"CESIUM_ADMIN_ADDR"                 help:"Admin listening address."`
	LogLevel                string        `cli:""        env:"CESIUM_LOG_LEVEL"                  help:"Log level (debug|info|warning|error)."`
	LogIndent               bool          `cli:""        env:"CESIUM_LOG_INDENT"                 help:"Indent logs."`
	MBTiles                 string        `cli:""        env:"CESIUM_MBTILES"                    help:"The mbtiles file to serve tiles from. Tiles are generated over the WGS84 ellipsoid when empty."`
	Workers                 int           `cli:""        env:"CESIUM_WORKERS"                    help:"The number of goroutines reading mbtiles tiles."`
	FrameDuration           time.Duration `cli:",hidden" env:"CESIUM_FRAME_DURATION"             help:"The duration of a frame."`
	MaximumScreenSpaceError float64       `cli:",hidden" env:"CESIUM_MAXIMUM_SCREEN_SPACE_ERROR" help:"The screen space error in pixels above which tiles are refined."`
	LoadBudget              int           `cli:",hidden" env:"CESIUM_LOAD_BUDGET"                help:"The number of tile loads started per frame."`
	TileCacheSize           int           `cli:",hidden" env:"CESIUM_TILE_CACHE_SIZE"            help:"The number of resident tiles above which unused tiles are released."`
	MaximumLevel            int           `cli:",hidden" env:"CESIUM_MAXIMUM_LEVEL"              help:"The deepest level tiles are refined to. 0 renders the root tiles only."`
	CameraHeight            float64       `cli:",hidden" env:"CESIUM_CAMERA_HEIGHT"              help:"The height in meters of the camera orbiting the equator."`
	OrbitPeriod             time.Duration `cli:",hidden" env:"CESIUM_ORBIT_PERIOD"               help:"The time the camera takes to orbit the equator."`
	ViewportWidth           int           `cli:",hidden" env:"CESIUM_VIEWPORT_WIDTH"             help:"The viewport width in pixels."`
	ViewportHeight          int           `cli:",hidden" env:"CESIUM_VIEWPORT_HEIGHT"            help:"The viewport height in pixels."`
	Retry                   retryConfig   `cli:",hidden" env:"-"                                 help:"Failed tile retry configuration."`
	Events                  eventsConfig  `cli:",hidden" env:"-"                                 help:"Event pusher configuration."`
	FeatureFlags            []string      `cli:",hidden" env:"CESIUM_FEATURE_FLAGS"              help:"Comma separated feature flags"`
	Version                 bool          `cli:""        env:"-"                                 help:"Show version."`
	Help                    bool          `cli:""        env:"-"                                 help:"Show help."`
}

type retryConfig struct {
	BaseFrames uint64  `cli:",hidden" env:"CESIUM_RETRY_BASE_FRAMES" help:"The number of frames to wait before retrying a failed tile the first time."`
	MaxFrames  uint64  `cli:",hidden" env:"CESIUM_RETRY_MAX_FRAMES"  help:"The maximum number of frames to wait before retrying a failed tile."`
	PerSecond  float64 `cli:",hidden" env:"CESIUM_RETRY_PER_SECOND" help:"The number of failed tiles retried per second."`
	Burst      int     `cli:",hidden" env:"CESIUM_RETRY_BURST"      help:"The number of failed tiles that can be retried at once."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"CESIUM_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"CESIUM_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"CESIUM_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"CESIUM_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:                    ":4000",
		AdminAddr:               ":18190",
		LogLevel:                logs.InfoLevel.String(),
		Workers:                 mbtiles.DefaultWorkers,
		FrameDuration:           time.Millisecond * 100,
		MaximumScreenSpaceError: quadtree.DefaultMaximumScreenSpaceError,
		LoadBudget:              quadtree.DefaultLoadBudget,
		TileCacheSize:           quadtree.DefaultTileCacheSize,
		MaximumLevel:            quadtree.DefaultMaximumLevel,
		CameraHeight:            10000000,
		OrbitPeriod:             time.Minute,
		ViewportWidth:           1024,
		ViewportHeight:          768,
		Retry: retryConfig{
			BaseFrames: retry.DefaultBaseFrames,
			MaxFrames:  retry.DefaultMaxFrames,
			PerSecond:  10,
			Burst:      10,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the cesium tile selection server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "cesium",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	p, err := newProvider(ctx, conf)
	if err != nil {
		logs.Fatal(errors.New("creating tile provider failed").Wrap(err))
	}

	engineOpts := newEngineOptions(conf, p)

	engine, err := quadtree.New(provider.WithMetrics(provider.WithLogs(p, providerName(conf)), providerName(conf)), engineOpts)
	if err != nil {
		logs.Fatal(errors.New("creating quadtree engine failed").Wrap(err))
	}
	defer func() {
		if err := engine.Destroy(); err != nil {
			logs.Warn(errors.New("destroying quadtree engine failed").Wrap(err))
		}
	}()

	cancelTileErrors := engine.HandleTileError(func(err provider.TileProviderError) {
		logs.WithTag("engine_uuid", engine.UUID()).
			WithTag("tile", err.Tile.String()).
			WithTag("attempts", err.Attempts).
			Warn(err.Err)
	})
	defer cancelTileErrors()

	inspectorServer := &inspector.Server{Name: engineOpts.Name}

	readinessCheck := func() bool {
		return !engine.IsDestroyed() && engine.Provider().Ready()
	}

	var service http.ServeMux
	service.Handle("/inspector", inspectorServer.Handler())
	service.Handle("/health", cesiumhttp.HandleWithCORS(http.HandlerFunc(cesiumhttp.HandleHealthCheck)))
	service.Handle("/ready", cesiumhttp.HandleWithCORS(cesiumhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", cesiumhttp.HandleWithCORS(cesiumhttp.HandleVersion(version)))
	service.Handle("/stats", cesiumhttp.HandleWithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.LastStats())
	})))
	service.Handle("/smoke-test", cesiumhttp.HandleWithCORS(smoketest.HandleSmokeTest(smoketest.Options{
		NewProvider: func(ctx context.Context) (provider.Provider, error) {
			return newProvider(ctx, conf)
		},
		Engine: quadtree.Options{
			Name:                    "smoketest",
			MaximumScreenSpaceError: engineOpts.MaximumScreenSpaceError,
			LoadBudget:              engineOpts.LoadBudget,
			MaximumLevel:            engineOpts.MaximumLevel,
			TileCacheSize:           engineOpts.TileCacheSize,
			FeatureFlags:            engineOpts.FeatureFlags,
		},
		Position:       geometry.CartographicFromDegrees(0, 0, conf.CameraHeight),
		ViewportWidth:  conf.ViewportWidth,
		ViewportHeight: conf.ViewportHeight,
		FrameInterval:  time.Millisecond,
	})))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", cesiumhttp.HandleHealthCheck)
	admin.HandleFunc("/ready", cesiumhttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("provider", providerName(conf)).
		WithTag("engine_uuid", engine.UUID()).
		WithTag("feature_flags", engineOpts.FeatureFlags.List()).
		Info("starting cesium server")

	go runFrames(ctx, engine, inspectorServer, conf)

	cesiumhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			cesiumhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func providerName(conf config) string {
	if conf.MBTiles != "" {
		return mbtiles.Name
	}
	return ellipsoid.Name
}

func newProvider(ctx context.Context, conf config) (provider.Provider, error) {
	if conf.MBTiles == "" {
		return ellipsoid.New(ellipsoid.Options{}), nil
	}

	p, err := mbtiles.Open(ctx, conf.MBTiles, mbtiles.Options{
		Workers: conf.Workers,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// levelLimiter is implemented by providers that only hold tiles up to a
// level, such as mbtiles files.
type levelLimiter interface {
	MaximumLevel() int
}

func newEngineOptions(conf config, p provider.Provider) quadtree.Options {
	level := conf.MaximumLevel
	if l, ok := p.(levelLimiter); ok && l.MaximumLevel() < level {
		level = l.MaximumLevel()
	}

	return quadtree.Options{
		Name:                    "cesium",
		MaximumScreenSpaceError: conf.MaximumScreenSpaceError,
		LoadBudget:              conf.LoadBudget,
		MaximumLevel:            quadtree.MaxLevel(level),
		TileCacheSize:           conf.TileCacheSize,
		RetryPolicy: retry.NewBackoff(
			conf.Retry.BaseFrames,
			conf.Retry.MaxFrames,
			conf.Retry.PerSecond,
			conf.Retry.Burst,
		),
		FeatureFlags: featureflag.New(conf.FeatureFlags),
	}
}

// runFrames updates the engine on each frame tick with a camera orbiting the
// equator, and publishes the frame reports to the inspector.
func runFrames(ctx context.Context, e *quadtree.Engine, s *inspector.Server, conf config) {
	ticker := time.NewTicker(conf.FrameDuration)
	defer ticker.Stop()

	rc := provider.NewRenderContext("cesium")
	start := time.Now()

	var cmds provider.CommandList
	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			fs := provider.NewFrameState(
				orbitCamera(conf.CameraHeight, conf.OrbitPeriod, now.Sub(start)),
				conf.ViewportWidth,
				conf.ViewportHeight,
			)
			fs.Time = now

			cmds.Reset()
			stats, err := e.Update(rc, fs, &cmds)
			if err != nil {
				logs.Error(errors.New("updating frame failed").Wrap(err))
				if errors.IsType(err, quadtree.ErrTypeEngineDestroyed) ||
					errors.IsType(err, provider.ErrTypeDestroyed) {
					return
				}
				continue
			}

			s.Publish(stats)
		}
	}
}

func orbitCamera(height float64, period, elapsed time.Duration) provider.Camera {
	longitude := math.Mod(360*elapsed.Seconds()/period.Seconds(), 360) - 180
	position := geometry.CartographicFromDegrees(longitude, 0, height)
	return provider.NewCamera(geometry.WGS84, position, r3.Vec{})
}

func validateConfig(conf config) error {
	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.OrbitPeriod <= 0 {
		return errors.New("orbit period must be positive").
			WithTag("orbit_period", conf.OrbitPeriod)
	}

	if conf.CameraHeight <= 0 {
		return errors.New("camera height must be positive").
			WithTag("camera_height", conf.CameraHeight)
	}

	if conf.MaximumScreenSpaceError <= 0 {
		return errors.New("maximum screen space error must be positive").
			WithTag("maximum_screen_space_error", conf.MaximumScreenSpaceError)
	}

	if conf.MaximumLevel < 0 {
		return errors.New("maximum level must not be negative").
			WithTag("maximum_level", conf.MaximumLevel)
	}

	if conf.ViewportWidth <= 0 || conf.ViewportHeight <= 0 {
		return errors.New("invalid viewport").
			WithTag("width", conf.ViewportWidth).
			WithTag("height", conf.ViewportHeight)
	}

	if conf.Retry.PerSecond < 0 || conf.Retry.Burst < 0 {
		return errors.New("invalid retry rate").
			WithTag("per_second", conf.Retry.PerSecond).
			WithTag("burst", conf.Retry.Burst)
	}

	if conf.MBTiles != "" {
		if _, err := os.Stat(conf.MBTiles); err != nil {
			return errors.New("invalid mbtiles file").
				WithTag("path", conf.MBTiles).
				Wrap(err)
		}
	}

	return nil
}
