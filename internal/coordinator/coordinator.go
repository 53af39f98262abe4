// Package coordinator keeps timeline widgets and the table of one view in
// selection and viewport sync.
package coordinator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/rs/zerolog/log"
)

// WindowOptions accompany a pushed viewport window.
type WindowOptions struct {
	Animation bool `json:"animation"`
}

// Widget is a live timeline instance. Methods are called with the coordinator
// lock held, in transition order, and must not call back into the
// coordinator.
type Widget interface {
	SetWindow(start, end time.Time, opts WindowOptions)
	SetSelection(ids []string)
}

// ItemSet is implemented by widgets that know which ids they display. Widgets
// without the id are told to clear their highlight.
type ItemSet interface {
	Contains(id string) bool
}

// Coordinator owns the selection and the widget registry of one view.
type Coordinator struct {
	mu        sync.Mutex
	selection models.Selection
	handles   []*Handle
	observers map[int]func(models.Selection)
	nextObs   int
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{
		observers: make(map[int]func(models.Selection)),
	}
}

// Selection returns the current selection.
func (c *Coordinator) Selection() models.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Select applies a click on id from origin. Re-clicking the selected id from
// the same origin deselects; any other click selects id from origin. An empty
// id clears the selection.
func (c *Coordinator) Select(id string, origin models.Origin) models.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := models.Selection{ID: id, Origin: origin}
	switch {
	case id == "":
		next = models.Selection{}
	case c.selection.ID == id && c.selection.Origin == origin:
		next = models.Selection{}
	}
	c.apply(next)
	return next
}

// Clear deselects, as a click on an empty timeline area does.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(models.Selection{})
}

// Reset forces NONE after a drilldown context change.
func (c *Coordinator) Reset() {
	c.Clear()
}

func (c *Coordinator) apply(next models.Selection) {
	if next == c.selection {
		return
	}
	c.selection = next
	for _, h := range c.handles {
		h.widget.SetSelection(idsFor(h.widget, next))
	}
	for _, fn := range c.observers {
		fn(next)
	}
}

func idsFor(w Widget, sel models.Selection) []string {
	if sel.None() {
		return []string{}
	}
	if set, ok := w.(ItemSet); ok && !set.Contains(sel.ID) {
		return []string{}
	}
	return []string{sel.ID}
}

// OnSelect registers fn for every selection change. The returned func
// unsubscribes.
func (c *Coordinator) OnSelect(fn func(models.Selection)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Register adds a widget and returns its handle. Callers must Release the
// handle when the widget goes away, typically with defer.
func (c *Coordinator) Register(w Widget) *Handle {
	h := &Handle{id: uuid.New().String(), c: c, widget: w}

	c.mu.Lock()
	c.handles = append(c.handles, h)
	if !c.selection.None() {
		w.SetSelection(idsFor(w, c.selection))
	}
	c.mu.Unlock()

	log.Debug().Str("component", "coordinator").Str("widget", shortID(h.id)).Msg("widget registered")
	return h
}

// Lookup returns the live handle with id.
func (c *Coordinator) Lookup(id string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handles {
		if h.id == id {
			return h, true
		}
	}
	return nil, false
}

// Count returns the number of live widgets.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// ReleaseAll drops every widget, used when the owning view is torn down.
func (c *Coordinator) ReleaseAll() {
	c.mu.Lock()
	handles := c.handles
	c.mu.Unlock()
	for _, h := range handles {
		h.Release()
	}
}

// Handle is the registration of one widget.
type Handle struct {
	id     string
	c      *Coordinator
	widget Widget
	once   sync.Once
}

// ID returns the handle id used on the wire.
func (h *Handle) ID() string {
	return h.id
}

// Release unregisters the widget. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		c := h.c
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, other := range c.handles {
			if other == h {
				c.handles = append(c.handles[:i:i], c.handles[i+1:]...)
				break
			}
		}
		log.Debug().Str("component", "coordinator").Str("widget", shortID(h.id)).Msg("widget released")
	})
}

// RangeChanged pushes the window reported by this widget to every other live
// widget without animation. Never echoes back to the source. No-op once
// released.
func (h *Handle) RangeChanged(start, end time.Time) {
	c := h.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if !h.live() {
		return
	}
	for _, other := range c.handles {
		if other == h {
			continue
		}
		other.widget.SetWindow(start, end, WindowOptions{Animation: false})
	}
}

// live must be called with the coordinator lock held.
func (h *Handle) live() bool {
	for _, other := range h.c.handles {
		if other == h {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
