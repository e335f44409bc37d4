package session

import (
	"sync"
	"time"
)

// Detector fires a callback when the caller stays silent for timeout after
// an utterance ends. A non-positive timeout disables it.
type Detector struct {
	timeout time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	onIdle  func()
	stopped bool
}

func NewDetector(timeout time.Duration) *Detector {
	return &Detector{timeout: timeout}
}

func (d *Detector) OnIdle(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onIdle = callback
}

func (d *Detector) OnSpeech() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Detector) OnUtteranceEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timeout <= 0 || d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		callback := d.onIdle
		d.timer = nil
		stopped := d.stopped
		d.mu.Unlock()

		if callback != nil && !stopped {
			callback()
		}
	})
}

// Stop cancels any pending timer; later utterance ends are ignored.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
