// Package mbtiles provides tiles read from an MBTiles SQLite database.
package mbtiles

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/adam-ce/cesium/geometry"
	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/provider"
	"github.com/adam-ce/cesium/tiling"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"
)

const (
	Name = "mbtiles"

	DefaultWorkers   = 4
	DefaultTimeout   = 10 * time.Second
	DefaultQueueSize = 256

	selectTileQuery = `SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`
	metadataQuery   = `SELECT name, value FROM metadata`
)

type Options struct {
	// The number of goroutines reading tiles.
	Workers int

	// The time after which a tile read fails.
	Timeout time.Duration

	// The number of reads that can wait for a worker.
	QueueSize int

	// The ellipsoid the tiles are draped over. WGS84 is used when zero.
	Ellipsoid geometry.Ellipsoid
}

// Metadata holds the metadata table entries the provider uses.
type Metadata struct {
	Name    string `json:"name"`
	Format  string `json:"format"`
	MinZoom int    `json:"minzoom"`
	MaxZoom int    `json:"maxzoom"`
}

// Provider reads tiles from an MBTiles file on a pool of workers.
type Provider struct {
	provider.Lifecycle

	path           string
	opts           Options
	db             *sql.DB
	metadata       Metadata
	scheme         *tiling.WebMercatorScheme
	culler         provider.SurfaceCuller
	levelZeroError float64
	events         provider.ErrorEvent

	requests  chan fetchRequest
	stop      chan struct{}
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// Open opens the MBTiles file at path, reads its metadata and starts the
// workers.
func Open(ctx context.Context, path string, opts Options) (*Provider, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Ellipsoid == (geometry.Ellipsoid{}) {
		opts.Ellipsoid = geometry.WGS84
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New("opening mbtiles failed").
			WithTag("path", path).
			Wrap(err)
	}

	metadata, err := readMetadata(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.New("reading mbtiles metadata failed").
			WithTag("path", path).
			Wrap(err)
	}

	scheme := tiling.NewWebMercatorScheme(opts.Ellipsoid)

	p := &Provider{
		path:           path,
		opts:           opts,
		db:             db,
		metadata:       metadata,
		scheme:         scheme,
		culler:         provider.SurfaceCuller{Ellipsoid: opts.Ellipsoid},
		levelZeroError: provider.ComputeDefaultLevelZeroMaximumGeometricError(scheme),
		requests:       make(chan fetchRequest, opts.QueueSize),
		stop:           make(chan struct{}),
	}

	for i := 0; i < opts.Workers; i++ {
		p.workers.Add(1)
		go p.work()
	}

	p.SetReady()

	logs.WithTag("path", path).
		WithTag("name", metadata.Name).
		WithTag("format", metadata.Format).
		WithTag("minzoom", metadata.MinZoom).
		WithTag("maxzoom", metadata.MaxZoom).
		Info("mbtiles opened")
	return p, nil
}

func readMetadata(ctx context.Context, db *sql.DB) (Metadata, error) {
	rows, err := db.QueryContext(ctx, metadataQuery)
	if err != nil {
		return Metadata{}, err
	}
	defer rows.Close()

	var metadata Metadata
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, err
		}

		switch name {
		case "name":
			metadata.Name = value

		case "format":
			metadata.Format = value

		case "minzoom":
			if metadata.MinZoom, err = strconv.Atoi(value); err != nil {
				return Metadata{}, errors.New("invalid minzoom").Wrap(err)
			}

		case "maxzoom":
			if metadata.MaxZoom, err = strconv.Atoi(value); err != nil {
				return Metadata{}, errors.New("invalid maxzoom").Wrap(err)
			}
		}
	}
	return metadata, rows.Err()
}

func (p *Provider) Metadata() Metadata {
	return p.metadata
}

// MaximumLevel returns the deepest level stored in the file.
func (p *Provider) MaximumLevel() int {
	return p.metadata.MaxZoom
}

func (p *Provider) TilingScheme() (tiling.Scheme, error) {
	if err := p.CheckReady("tiling_scheme"); err != nil {
		return nil, err
	}
	return p.scheme, nil
}

func (p *Provider) ErrorEvent() *provider.ErrorEvent {
	return &p.events
}

func (p *Provider) LevelMaximumGeometricError(level int) (float64, error) {
	if err := p.CheckReady("level_maximum_geometric_error"); err != nil {
		return 0, err
	}
	return provider.HalvingGeometricError(p.levelZeroError, level), nil
}

func (p *Provider) BeginFrame(rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	return p.CheckReady("begin_frame")
}

func (p *Provider) EndFrame(rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	if err := p.CheckReady("end_frame"); err != nil {
		return err
	}

	instrumentQueueSize(p.metadata.Name, len(p.requests))
	return nil
}

// LoadTile queues a read of the tile on the first call and reports the
// result of the read on a later call.
func (p *Provider) LoadTile(ctx context.Context, rc provider.RenderContext, fs *provider.FrameState, tile *models.Tile) error {
	if err := p.CheckReady("load_tile"); err != nil {
		return err
	}

	payload, ok := tile.Data.(*Payload)
	if !ok {
		payload = newPayload(ctx)
		tile.Data = payload
	}

	if !payload.queued {
		payload.queued = p.enqueue(fetchRequest{
			id:      tile.ID,
			payload: payload,
		})
		return nil
	}

	if !payload.Done() {
		return nil
	}

	if err := payload.Err(); err != nil {
		tile.MarkFailed()
		tile.Data = nil
		payload.release()

		p.events.Raise(provider.TileProviderError{
			Tile: tile.ID,
			Err: errors.New("reading tile failed").
				WithType(provider.ErrTypeTileLoadFailed).
				WithTag("tile", tile.ID.String()).
				WithTag("path", p.path).
				Wrap(err),
			Attempts: tile.LoadAttempts,
		})
		return nil
	}

	tile.MarkReady()
	return nil
}

func (p *Provider) IsTileVisible(tile *models.Tile, fs *provider.FrameState, occluders *provider.Occluders) (bool, error) {
	if err := p.CheckReady("is_tile_visible"); err != nil {
		return false, err
	}
	return p.culler.IsVisible(p.culler.BoundingSphere(tile), fs, occluders)
}

func (p *Provider) DistanceToTile(tile *models.Tile, fs *provider.FrameState, cameraPosition r3.Vec, cameraCartographic geometry.Cartographic) (float64, error) {
	if err := p.CheckReady("distance_to_tile"); err != nil {
		return 0, err
	}
	return p.culler.Distance(p.culler.BoundingSphere(tile), cameraPosition)
}

// RenderTile appends a draw command carrying the tile bytes. Tiles missing
// from the file draw nothing.
func (p *Provider) RenderTile(tile *models.Tile, rc provider.RenderContext, fs *provider.FrameState, cmds *provider.CommandList) error {
	if err := p.CheckReady("render_tile"); err != nil {
		return err
	}

	payload, ok := tile.Data.(*Payload)
	if !ok || payload.Empty() {
		return nil
	}

	cmds.Push(provider.DrawCommand{
		Tile:           tile.ID,
		Provider:       Name,
		BoundingSphere: p.culler.BoundingSphere(tile),
		Payload:        payload.Bytes(),
	})
	return nil
}

// ReleaseTile abandons a pending read and drops the tile bytes.
func (p *Provider) ReleaseTile(tile *models.Tile) error {
	if err := p.CheckAlive("release_tile"); err != nil {
		return err
	}

	if payload, ok := tile.Data.(*Payload); ok {
		payload.release()
		tile.Data = nil
	}
	return nil
}

// Destroy stops the workers and closes the database.
func (p *Provider) Destroy() error {
	if err := p.Lifecycle.Destroy(); err != nil {
		return err
	}

	p.closeOnce.Do(func() {
		close(p.stop)
	})
	p.workers.Wait()

	if err := p.db.Close(); err != nil {
		return errors.New("closing mbtiles failed").
			WithTag("path", p.path).
			Wrap(err)
	}
	return nil
}
