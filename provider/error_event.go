package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/adam-ce/cesium/models"
)

// TileProviderError describes an asynchronous tile load failure.
type TileProviderError struct {
	Tile     models.TileID
	Err      error
	Attempts int
	Time     time.Time

	// Marks the tile for another load attempt on the next frame. It is set
	// by the engine before the error reaches subscribers.
	Retry func()
}

func (e TileProviderError) Error() string {
	return fmt.Sprintf("loading tile %s failed after %d attempt(s): %v", e.Tile, e.Attempts, e.Err)
}

func (e TileProviderError) Unwrap() error {
	return e.Err
}

// ErrorEvent is a queue of load failures. Providers raise errors from any
// goroutine and the engine drains them once per frame.
type ErrorEvent struct {
	mutex  sync.Mutex
	errors []TileProviderError
}

func (e *ErrorEvent) Raise(err TileProviderError) {
	if err.Time.IsZero() {
		err.Time = time.Now()
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.errors = append(e.errors, err)
}

// Drain removes and returns the raised errors in the order they were raised.
func (e *ErrorEvent) Drain() []TileProviderError {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	errors := e.errors
	e.errors = nil
	return errors
}

func (e *ErrorEvent) Len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return len(e.errors)
}
