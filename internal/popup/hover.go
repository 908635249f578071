package popup

import (
	"sync"
	"time"
)

// DefaultCloseDelay is how long a popup stays open after the pointer leaves its marker.
const DefaultCloseDelay = 300 * time.Millisecond

// HoverController opens a popup on marker hover or click and closes it after a
// delay, unless the pointer has moved onto the popup itself in the meantime.
type HoverController struct {
	mu      sync.Mutex
	delay   time.Duration
	open    func()
	close   func()
	timer   *time.Timer
	isOpen  bool
	onPopup bool
}

// NewHoverController creates a controller calling open and close on transitions.
// A non-positive delay uses DefaultCloseDelay.
func NewHoverController(delay time.Duration, open, close func()) *HoverController {
	if delay <= 0 {
		delay = DefaultCloseDelay
	}
	return &HoverController{delay: delay, open: open, close: close}
}

// MarkerEnter opens the popup and cancels any pending close.
func (h *HoverController) MarkerEnter() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked()
	h.openLocked()
}

// Click behaves like MarkerEnter.
func (h *HoverController) Click() { h.MarkerEnter() }

// MarkerLeave schedules a deferred close.
func (h *HoverController) MarkerLeave() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduleLocked()
}

// PopupEnter keeps the popup open while the pointer is over it.
func (h *HoverController) PopupEnter() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPopup = true
	h.cancelLocked()
}

// PopupLeave schedules a deferred close.
func (h *HoverController) PopupLeave() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPopup = false
	h.scheduleLocked()
}

// Sync records a visibility change made outside the controller, e.g. the
// popup's close button. Any pending close is cancelled and no callback runs.
func (h *HoverController) Sync(open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked()
	h.isOpen = open
	if !open {
		h.onPopup = false
	}
}

// IsOpen reports the controller's view of popup visibility.
func (h *HoverController) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isOpen
}

// Stop cancels any pending close without invoking callbacks.
func (h *HoverController) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked()
}

func (h *HoverController) openLocked() {
	if h.isOpen {
		return
	}
	h.isOpen = true
	if h.open != nil {
		h.open()
	}
}

func (h *HoverController) scheduleLocked() {
	h.cancelLocked()
	if !h.isOpen {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(h.delay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		// superseded by a later enter/leave
		if h.timer != t {
			return
		}
		h.timer = nil
		if h.onPopup || !h.isOpen {
			return
		}
		h.isOpen = false
		if h.close != nil {
			h.close()
		}
	})
	h.timer = t
}

func (h *HoverController) cancelLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
