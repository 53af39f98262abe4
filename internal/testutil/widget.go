package testutil

import (
	"sync"
	"time"

	"github.com/pjw7536/react-timeline2/internal/coordinator"
)

// WindowCall records one SetWindow call.
type WindowCall struct {
	Start time.Time
	End   time.Time
	Opts  coordinator.WindowOptions
}

// RecordingWidget implements coordinator.Widget and records every call.
// When Items is non-nil it also implements coordinator.ItemSet.
type RecordingWidget struct {
	Name  string
	Items map[string]bool

	mu         sync.Mutex
	windows    []WindowCall
	selections [][]string
}

// NewRecordingWidget creates a widget that displays every id.
func NewRecordingWidget(name string) *RecordingWidget {
	return &RecordingWidget{Name: name}
}

// NewRecordingWidgetWithItems creates a widget that displays only ids.
func NewRecordingWidgetWithItems(name string, ids ...string) *RecordingWidget {
	w := &RecordingWidget{Name: name, Items: make(map[string]bool)}
	for _, id := range ids {
		w.Items[id] = true
	}
	return w
}

func (w *RecordingWidget) SetWindow(start, end time.Time, opts coordinator.WindowOptions) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.windows = append(w.windows, WindowCall{Start: start, End: end, Opts: opts})
}

func (w *RecordingWidget) SetSelection(ids []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selections = append(w.selections, append([]string(nil), ids...))
}

// Contains reports whether the widget displays id. Every id when Items is nil.
func (w *RecordingWidget) Contains(id string) bool {
	if w.Items == nil {
		return true
	}
	return w.Items[id]
}

// Windows returns the recorded SetWindow calls.
func (w *RecordingWidget) Windows() []WindowCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WindowCall(nil), w.windows...)
}

// Selections returns the recorded SetSelection calls.
func (w *RecordingWidget) Selections() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]string(nil), w.selections...)
}

// LastSelection returns the most recent SetSelection ids, or nil.
func (w *RecordingWidget) LastSelection() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.selections) == 0 {
		return nil
	}
	return w.selections[len(w.selections)-1]
}
