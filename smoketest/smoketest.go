// Package smoketest checks that a provider lets an engine settle on a
// complete view.
package smoketest

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/provider"
	"github.com/adam-ce/cesium/quadtree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultMaxFrames      = 200
	DefaultViewportWidth  = 1024
	DefaultViewportHeight = 768
	DefaultCameraHeight   = 10000000
)

type Options struct {
	// Creates the provider driven by a run. The provider is destroyed when
	// the run ends.
	NewProvider func(context.Context) (provider.Provider, error)

	// The options of the engine created for each run.
	Engine quadtree.Options

	// The ellipsoid the camera is positioned on. WGS84 is used when zero.
	Ellipsoid geometry.Ellipsoid

	// The camera position. The camera looks at the center of the ellipsoid.
	Position geometry.Cartographic

	ViewportWidth  int
	ViewportHeight int

	// The number of frames after which a run that did not converge stops.
	MaxFrames int

	// The pause between frames, giving asynchronous loads time to complete.
	FrameInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Ellipsoid == (geometry.Ellipsoid{}) {
		o.Ellipsoid = geometry.WGS84
	}
	if o.Position == (geometry.Cartographic{}) {
		o.Position.Height = DefaultCameraHeight
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = DefaultViewportWidth
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = DefaultViewportHeight
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = DefaultMaxFrames
	}
	return o
}

// Results describes a run.
type Results struct {
	Converged bool                `json:"converged"`
	Frames    int                 `json:"frames"`
	Duration  time.Duration       `json:"duration"`
	LastFrame quadtree.FrameStats `json:"last_frame"`
	Errors    []string            `json:"errors,omitempty"`
}

// Run updates a new engine with a fixed camera until a frame draws every
// selected tile with its own data, or until MaxFrames frames ran.
func Run(ctx context.Context, opts Options) (Results, error) {
	opts = opts.withDefaults()
	start := time.Now()

	if opts.NewProvider == nil {
		return Results{}, errors.New("smoke test has no provider")
	}

	p, err := opts.NewProvider(ctx)
	if err != nil {
		return Results{}, errors.New("creating smoke test provider failed").Wrap(err)
	}

	e, err := quadtree.New(p, opts.Engine)
	if err != nil {
		p.Destroy()
		return Results{}, errors.New("creating smoke test engine failed").Wrap(err)
	}
	defer func() {
		if err := e.Destroy(); err != nil {
			logs.Warn(errors.New("destroying smoke test engine failed").Wrap(err))
		}
	}()

	var res Results
	cancel := e.HandleTileError(func(err provider.TileProviderError) {
		res.Errors = append(res.Errors, err.Error())
	})
	defer cancel()

	camera := provider.NewCamera(opts.Ellipsoid, opts.Position, r3.Vec{})
	rc := provider.NewRenderContext("smoketest")

	for i := 0; i < opts.MaxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return res, errors.New("smoke test interrupted").
				WithTag("frames", res.Frames).
				Wrap(err)
		}

		var cmds provider.CommandList
		fs := provider.NewFrameState(camera, opts.ViewportWidth, opts.ViewportHeight)

		stats, err := e.Update(rc, fs, &cmds)
		if err != nil {
			return res, errors.New("smoke test frame failed").
				WithTag("frame", i).
				Wrap(err)
		}

		if !stats.Skipped {
			res.Frames++
		}
		res.LastFrame = stats

		if stats.Converged() {
			res.Converged = true
			break
		}

		if opts.FrameInterval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.FrameInterval):
			}
		}
	}

	res.Duration = time.Since(start)

	logs.WithTag("converged", res.Converged).
		WithTag("frames", res.Frames).
		WithTag("duration", res.Duration).
		WithTag("errors", len(res.Errors)).
		Info("smoke test finished")
	return res, nil
}

// SmokeTestRequest optionally overrides the camera and frame limit of a run.
// Angles are in degrees.
type SmokeTestRequest struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Height    float64 `json:"height"`
	MaxFrames int     `json:"max_frames"`
}

// HandleSmokeTest runs a smoke test and responds with its results.
func HandleSmokeTest(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errors.New("reading body failed").Wrap(err))
			return
		}

		runOpts := opts
		if len(b) != 0 {
			var req SmokeTestRequest
			if err := json.Unmarshal(b, &req); err != nil {
				writeError(w, http.StatusBadRequest, errors.New("invalid smoke test request").Wrap(err))
				return
			}

			runOpts.Position = geometry.CartographicFromDegrees(req.Longitude, req.Latitude, req.Height)
			if req.MaxFrames > 0 {
				runOpts.MaxFrames = req.MaxFrames
			}
		}

		res, err := Run(r.Context(), runOpts)
		if err != nil {
			logs.Warn(err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	})
}
