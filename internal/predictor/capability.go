// Package predictor adapts the pre-trained yield regressor and disease classifier
// behind a load-once capability with an explicit availability check.
package predictor

import (
	"fmt"
	"sync"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
)

// State is the lifecycle of a model capability. Uninitialized moves to Ready or
// Failed exactly once; there is no retry and no path back.
type State int

const (
	Uninitialized State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Capability guards one model artifact. It is safe for concurrent use.
type Capability struct {
	name string

	once  sync.Once
	mu    sync.RWMutex
	state State
	err   error
}

func NewCapability(name string) *Capability {
	return &Capability{name: name}
}

func (c *Capability) Name() string { return c.name }

// Load runs load the first time it is called and records the outcome.
// Later calls return the recorded outcome without running load again.
func (c *Capability) Load(load func() error) error {
	c.once.Do(func() {
		err := load()
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.state, c.err = Failed, err
			return
		}
		c.state = Ready
	})
	return c.Err()
}

func (c *Capability) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Available reports whether the model loaded successfully.
func (c *Capability) Available() bool { return c.State() == Ready }

// Err is nil when Ready and a MODEL_UNAVAILABLE AppError otherwise.
func (c *Capability) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case Ready:
		return nil
	case Failed:
		return common.ModelUnavailableError(c.unavailableMessage(), fmt.Errorf("%s load failed: %w", c.name, c.err))
	default:
		return common.ModelUnavailableError(c.unavailableMessage(), fmt.Errorf("%s not loaded", c.name))
	}
}

// LoadError is the raw load failure, nil unless Failed.
func (c *Capability) LoadError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Capability) unavailableMessage() string {
	return fmt.Sprintf("The %s model is not available right now.", c.name)
}
