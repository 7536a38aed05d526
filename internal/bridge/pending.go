package bridge

import (
	"sync"
	"time"
)

// extractionResult is the single settlement value of a pending extraction.
type extractionResult struct {
	text string
	err  error
}

// pendingCall is the handle for one outstanding full-text extraction. The
// handle owns its result channel, its deadline timer and the routing slot on
// the viewer, and all of them are released together on the first settlement.
// Later settlements are no-ops, so a duplicate or late-arriving viewer
// response cannot resolve the call twice.
type pendingCall struct {
	result  chan extractionResult
	timer   *time.Timer
	release func()
	once    sync.Once
}

// settle resolves the call exactly once. The timer is stopped and the routing
// slot released before the result is delivered.
func (c *pendingCall) settle(text string, err error) {
	c.once.Do(func() {
		if c.timer != nil {
			c.timer.Stop()
		}
		if c.release != nil {
			c.release()
		}
		c.result <- extractionResult{text: text, err: err}
	})
}
