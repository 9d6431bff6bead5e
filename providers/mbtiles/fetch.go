package mbtiles

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adam-ce/cesium/models"
)

// Payload is the data attached to the tiles of the provider.
type Payload struct {
	ctx    context.Context
	cancel context.CancelFunc
	queued bool

	done  atomic.Bool
	mutex sync.Mutex
	data  []byte
	err   error
}

func newPayload(ctx context.Context) *Payload {
	ctx, cancel := context.WithCancel(ctx)
	return &Payload{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Done reports whether the read of the tile is over.
func (p *Payload) Done() bool {
	return p.done.Load()
}

func (p *Payload) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.err
}

func (p *Payload) Bytes() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.data
}

// Empty reports whether the tile is missing from the file.
func (p *Payload) Empty() bool {
	return len(p.Bytes()) == 0
}

func (p *Payload) complete(data []byte, err error) {
	p.mutex.Lock()
	p.data = data
	p.err = err
	p.mutex.Unlock()

	p.done.Store(true)
}

func (p *Payload) release() {
	p.cancel()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.data = nil
}

type fetchRequest struct {
	id      models.TileID
	payload *Payload
}

// enqueue hands a request to the workers. It returns false when the queue
// is full, in which case the request is retried on the next load call.
func (p *Provider) enqueue(r fetchRequest) bool {
	select {
	case p.requests <- r:
		return true

	default:
		return false
	}
}

func (p *Provider) work() {
	defer p.workers.Done()

	for {
		select {
		case <-p.stop:
			return

		case r := <-p.requests:
			p.fetch(r)
		}
	}
}

func (p *Provider) fetch(r fetchRequest) {
	if err := r.payload.ctx.Err(); err != nil {
		r.payload.complete(nil, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.payload.ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()

	var data []byte
	err := p.db.
		QueryRowContext(ctx, selectTileQuery, r.id.Level, r.id.X, tmsRow(r.id)).
		Scan(&data)

	result := fetchResultHit
	switch {
	case err == sql.ErrNoRows:
		result = fetchResultMiss
		data = nil
		err = nil

	case err != nil:
		result = fetchResultError
	}

	instrumentFetch(p.metadata.Name, result, time.Since(start))
	r.payload.complete(data, err)
}

// tmsRow converts an XYZ row, counted from the north, to the TMS row stored
// in MBTiles files, counted from the south.
func tmsRow(id models.TileID) int {
	return (1 << id.Level) - id.Y - 1
}
