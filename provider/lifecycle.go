package provider

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Lifecycle implements the ready and destroy gates shared by providers. It is
// meant to be embedded.
type Lifecycle struct {
	mutex     sync.RWMutex
	ready     bool
	destroyed bool
	quadtree  Quadtree
}

// SetReady opens the ready gate.
func (l *Lifecycle) SetReady() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.ready = true
}

// Ready reports whether the provider is ready and not destroyed.
func (l *Lifecycle) Ready() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.ready && !l.destroyed
}

func (l *Lifecycle) IsDestroyed() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.destroyed
}

// Destroy closes both gates. Destroying twice returns an error.
func (l *Lifecycle) Destroy() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.destroyed {
		return destroyedError("destroy")
	}

	l.destroyed = true
	l.quadtree = nil
	return nil
}

// CheckReady returns an error when op is called before the provider is ready
// or after it is destroyed.
func (l *Lifecycle) CheckReady(op string) error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.destroyed {
		return destroyedError(op)
	}

	if !l.ready {
		return errors.New("provider is not ready").
			WithType(ErrTypeNotReady).
			WithTag("operation", op)
	}
	return nil
}

// CheckAlive returns an error when op is called after the provider is
// destroyed.
func (l *Lifecycle) CheckAlive(op string) error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.destroyed {
		return destroyedError(op)
	}
	return nil
}

func (l *Lifecycle) SetQuadtree(q Quadtree) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.destroyed {
		return destroyedError("set_quadtree")
	}

	if l.quadtree != nil {
		return errors.New("quadtree is already set").
			WithType(ErrTypeQuadtreeAlreadySet)
	}

	l.quadtree = q
	return nil
}

// Quadtree returns the quadtree set with SetQuadtree.
func (l *Lifecycle) Quadtree() Quadtree {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.quadtree
}

func destroyedError(op string) error {
	return errors.New("provider is destroyed").
		WithType(ErrTypeDestroyed).
		WithTag("operation", op)
}
