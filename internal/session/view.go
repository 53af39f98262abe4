package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pjw7536/react-timeline2/internal/coordinator"
	"github.com/pjw7536/react-timeline2/internal/filter"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/parser"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pjw7536/react-timeline2/internal/timeline"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// LoadStatus is the load state of one kind.
type LoadStatus string

const (
	LoadPending LoadStatus = "pending"
	LoadLoading LoadStatus = "loading"
	LoadLoaded  LoadStatus = "loaded"
	LoadError   LoadStatus = "error"
)

// Status summarizes a view.
type Status string

const (
	// StatusIdle means no complete drilldown context is set.
	StatusIdle         Status = "idle"
	StatusValidating   Status = "validating"
	StatusLoading      Status = "loading"
	StatusReady        Status = "ready"
	StatusAuthRequired Status = "auth_required"
	// StatusInvalid means context validation failed; the client redirects.
	StatusInvalid Status = "invalid"
)

// KindState is the load state of one kind.
type KindState struct {
	Status    LoadStatus `json:"status"`
	Count     int        `json:"count"`
	Error     string     `json:"error,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
}

// Validation tells the client where to go after an invalid context.
type Validation struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
	DelayMs  int64  `json:"delayMs"`
}

// Snapshot is a consistent copy of a view's state.
type Snapshot struct {
	ID         string                    `json:"id"`
	Generation uint64                    `json:"generation"`
	Status     Status                    `json:"status"`
	Context    models.DrilldownContext   `json:"context"`
	Kinds      map[models.Kind]KindState `json:"kinds"`
	AllLoaded  bool                      `json:"allLoaded"`
	EventCount int                       `json:"eventCount"`
	Selection  models.Selection          `json:"selection"`
	Filters    filter.TypeFilters        `json:"filters"`
	Groups     filter.GroupSelection     `json:"groups"`
	ShowLegend bool                      `json:"showLegend"`
	Continuous bool                      `json:"continuous"`
	Validation *Validation               `json:"validation,omitempty"`
	LoginURL   string                    `json:"loginUrl,omitempty"`

	// Events is the merged event set. Shared; callers must not modify it.
	Events []models.LogEvent `json:"-"`
}

// View is one open timeline page: a drilldown context, its loaded events and
// the filter and selection state around them.
type View struct {
	id       string
	settings *Settings
	coord    *coordinator.Coordinator

	mu           sync.RWMutex
	dctx         models.DrilldownContext
	generation   uint64
	loadCtx      context.Context
	cancel       context.CancelFunc
	kinds        map[models.Kind]*KindState
	events       map[models.Kind][]models.LogEvent
	merged       []models.LogEvent
	universe     []models.GroupKey
	filters      filter.TypeFilters
	groups       filter.GroupSelection
	showLegend   bool
	validating   bool
	authRequired bool
	validation   *Validation
	lastAccessed time.Time
	observers    map[int]func(Snapshot)
	nextObs      int
}

func newView(id string, settings *Settings) *View {
	v := &View{
		id:           id,
		settings:     settings,
		coord:        coordinator.New(),
		kinds:        make(map[models.Kind]*KindState, len(models.AllKinds)),
		events:       make(map[models.Kind][]models.LogEvent),
		merged:       []models.LogEvent{},
		filters:      filter.DefaultTypeFilters(),
		groups:       filter.AllGroups(),
		showLegend:   settings.ShowLegend,
		lastAccessed: time.Now(),
		observers:    make(map[int]func(Snapshot)),
	}
	for _, k := range models.AllKinds {
		v.kinds[k] = &KindState{Status: LoadPending}
	}
	return v
}

// ID returns the view id.
func (v *View) ID() string {
	return v.id
}

// Coordinator returns the selection and viewport coordinator of the view.
func (v *View) Coordinator() *coordinator.Coordinator {
	return v.coord
}

// SetContext switches the view to dctx. Pending loads of the previous context
// are cancelled and their late results discarded. With validate, the
// equipment is first looked up and the SDWT and PRC group are filled in from
// the lookup. Returns the new generation.
func (v *View) SetContext(dctx models.DrilldownContext, validate bool) uint64 {
	complete := dctx.Complete()

	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.generation++
	gen := v.generation
	v.dctx = dctx
	v.events = make(map[models.Kind][]models.LogEvent)
	v.merged = []models.LogEvent{}
	v.universe = nil
	v.groups = filter.AllGroups()
	v.authRequired = false
	v.validation = nil
	v.validating = complete && validate
	for _, k := range models.AllKinds {
		status := LoadPending
		if complete && !validate {
			status = LoadLoading
		}
		v.kinds[k] = &KindState{Status: status}
	}
	v.loadCtx = nil
	if complete {
		v.loadCtx, v.cancel = context.WithCancel(context.Background())
	}
	ctx := v.loadCtx
	v.mu.Unlock()

	v.coord.Reset()
	log.Info().Str("component", "session").Str("view", shortID(v.id)).Str("context", dctx.Key()).
		Uint64("generation", gen).Msg("context changed")
	v.notify()

	if complete {
		go v.load(ctx, gen, dctx, validate)
	}
	return gen
}

// ReloadKind refetches one kind of the current context, typically after it
// failed.
func (v *View) ReloadKind(kind models.Kind) error {
	if !kind.Valid() {
		return errors.Errorf("unknown log kind %q", kind)
	}

	v.mu.Lock()
	if !v.dctx.Complete() || v.validating || v.validation != nil || v.authRequired {
		v.mu.Unlock()
		return ErrNotReady
	}
	if v.kinds[kind].Status == LoadLoading {
		v.mu.Unlock()
		return nil
	}
	gen := v.generation
	dctx := v.dctx
	ctx := v.loadCtx
	v.kinds[kind] = &KindState{Status: LoadLoading}
	v.mu.Unlock()
	v.notify()

	go func() {
		if err := v.loadKind(ctx, gen, kind, dctx); err != nil {
			v.requireAuth(gen)
		}
	}()
	return nil
}

func (v *View) load(ctx context.Context, gen uint64, dctx models.DrilldownContext, validate bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "session").Str("view", shortID(v.id)).Interface("panic", r).Msg("load panicked")
			v.failPending(gen, fmt.Errorf("load panicked: %v", r))
		}
	}()

	if validate {
		info, err := v.settings.Fetcher.EquipmentInfo(ctx, dctx.LineID, dctx.EqpID)
		switch {
		case err == nil:
			dctx.SdwtID = info.SdwtID
			dctx.PrcGroup = info.PrcGroup
			if !v.update(gen, func() {
				v.dctx = dctx
				v.validating = false
				for _, k := range models.AllKinds {
					v.kinds[k] = &KindState{Status: LoadLoading}
				}
			}) {
				return
			}
		case source.IsAuth(err):
			v.requireAuth(gen)
			return
		case source.IsNotFound(err):
			v.invalidate(gen, "Invalid line or equipment id")
			return
		default:
			if ctx.Err() != nil {
				return
			}
			log.Warn().Str("component", "session").Str("view", shortID(v.id)).Err(err).Msg("context validation failed")
			v.invalidate(gen, "Error while validating the line and equipment")
			return
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if v.settings.FetchConcurrency > 0 {
		g.SetLimit(v.settings.FetchConcurrency)
	}
	for _, kind := range models.AllKinds {
		kind := kind
		g.Go(func() error {
			return v.loadKind(gctx, gen, kind, dctx)
		})
	}
	if err := g.Wait(); err != nil {
		v.requireAuth(gen)
	}
}

// loadKind fetches and normalizes one kind. It returns an error only for
// authentication failures, which abort the whole view.
func (v *View) loadKind(ctx context.Context, gen uint64, kind models.Kind, dctx models.DrilldownContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "session").Str("kind", string(kind)).Interface("panic", r).Msg("kind load panicked")
			v.finishKind(gen, kind, nil, fmt.Errorf("load panicked: %v", r))
			err = nil
		}
	}()

	start := time.Now()
	rows, err := v.settings.Fetcher.FetchLogs(ctx, kind, dctx)
	if err != nil {
		if source.IsAuth(err) {
			return err
		}
		v.finishKind(gen, kind, nil, err)
		return nil
	}
	events, err := v.settings.Registry.Normalize(kind, rows, parser.Options{
		Continuous: v.settings.Continuous,
		Location:   v.settings.Location,
	})
	if err == nil {
		log.Debug().Str("component", "session").Str("kind", kind.Code()).Int("rows", len(rows)).
			Int("events", len(events)).Int("dropped", len(rows)-len(events)).
			Dur("elapsed", time.Since(start)).Msg("kind loaded")
	}
	v.finishKind(gen, kind, events, err)
	return nil
}

// finishKind records the outcome of one kind unless the generation moved on.
func (v *View) finishKind(gen uint64, kind models.Kind, events []models.LogEvent, err error) {
	applied := v.update(gen, func() {
		if err != nil {
			v.kinds[kind] = &KindState{
				Status:    LoadError,
				Error:     err.Error(),
				Retryable: !source.IsNotFound(err),
			}
			return
		}
		v.kinds[kind] = &KindState{Status: LoadLoaded, Count: len(events)}
		v.events[kind] = events
		v.remerge()
	})
	if !applied {
		log.Debug().Str("component", "session").Str("view", shortID(v.id)).Str("kind", kind.Code()).
			Uint64("generation", gen).Msg("discarded stale result")
	}
}

// remerge must be called with the lock held.
func (v *View) remerge() {
	merged := parser.MergeKinds(v.events)
	if v.settings.Continuous {
		merged = timeline.ResolveDurations(merged, v.settings.Location)
	}
	v.merged = merged
	groups, _ := timeline.GroupInterlocks(v.events[models.KindInterlock])
	v.universe = filter.Universe(groups)
	v.groups = v.groups.Normalize(v.universe)
}

func (v *View) requireAuth(gen uint64) {
	v.update(gen, func() {
		if v.cancel != nil {
			v.cancel()
			v.cancel = nil
		}
		v.authRequired = true
		v.validating = false
		for _, st := range v.kinds {
			if st.Status != LoadLoaded {
				st.Status = LoadError
				st.Error = "authentication required"
				st.Retryable = false
			}
		}
	})
	log.Warn().Str("component", "session").Str("view", shortID(v.id)).Msg("authentication required")
}

func (v *View) invalidate(gen uint64, message string) {
	v.update(gen, func() {
		v.validating = false
		v.validation = &Validation{
			Message:  message,
			Redirect: v.settings.InvalidRedirect,
			DelayMs:  v.settings.RedirectDelay.Milliseconds(),
		}
		for _, k := range models.AllKinds {
			v.kinds[k] = &KindState{Status: LoadPending}
		}
	})
}

func (v *View) failPending(gen uint64, err error) {
	v.update(gen, func() {
		v.validating = false
		for _, st := range v.kinds {
			if st.Status == LoadLoading || st.Status == LoadPending {
				st.Status = LoadError
				st.Error = err.Error()
				st.Retryable = true
			}
		}
	})
}

// update applies fn under the lock if gen is still current, then notifies.
func (v *View) update(gen uint64, fn func()) bool {
	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return false
	}
	fn()
	v.mu.Unlock()
	v.notify()
	return true
}

// mutate applies fn under the lock and notifies.
func (v *View) mutate(fn func()) {
	v.mu.Lock()
	fn()
	v.mu.Unlock()
	v.notify()
}

// SetTypeFilter shows or hides one kind.
func (v *View) SetTypeFilter(kind models.Kind, visible bool) error {
	if !kind.Valid() {
		return errors.Errorf("unknown log kind %q", kind)
	}
	v.mutate(func() { v.filters = v.filters.With(kind, visible) })
	return nil
}

// SetGroupSelection replaces the interlock group filter.
func (v *View) SetGroupSelection(sel filter.GroupSelection) {
	v.mutate(func() { v.groups = sel.Normalize(v.universe) })
}

// ToggleGroupNode toggles every group under the tree node nodeID.
func (v *View) ToggleGroupNode(nodeID string) error {
	var err error
	v.mutate(func() {
		groups, _ := timeline.GroupInterlocks(v.events[models.KindInterlock])
		node := filter.FindNode(filter.BuildTree(groups), nodeID)
		if node == nil {
			err = errors.Wrapf(ErrUnknownNode, "node %q", nodeID)
			return
		}
		v.groups = filter.ToggleNode(node, v.groups, v.universe)
	})
	return err
}

// SetShowLegend switches lane labels between titles and legend swatches.
func (v *View) SetShowLegend(show bool) {
	v.mutate(func() { v.showLegend = show })
}

// Select applies a click to the view's coordinator.
func (v *View) Select(id string, origin models.Origin) models.Selection {
	sel := v.coord.Select(id, origin)
	v.notify()
	return sel
}

// Clear drops the selection and publishes the new state.
func (v *View) Clear() {
	v.coord.Clear()
	v.notify()
}

// Snapshot returns a consistent copy of the state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	s := Snapshot{
		ID:         v.id,
		Generation: v.generation,
		Context:    v.dctx,
		Kinds:      make(map[models.Kind]KindState, len(v.kinds)),
		AllLoaded:  true,
		EventCount: len(v.merged),
		Filters:    v.filters.Clone(),
		Groups:     v.groups,
		ShowLegend: v.showLegend,
		Continuous: v.settings.Continuous,
		Events:     v.merged,
	}
	for k, st := range v.kinds {
		s.Kinds[k] = *st
		if st.Status != LoadLoaded {
			s.AllLoaded = false
		}
	}
	if v.validation != nil {
		val := *v.validation
		s.Validation = &val
	}
	s.Status = v.statusLocked()
	if s.Status == StatusAuthRequired {
		s.LoginURL = v.settings.LoginURL
	}
	v.mu.RUnlock()

	s.Selection = v.coord.Selection()
	return s
}

func (v *View) statusLocked() Status {
	switch {
	case v.authRequired:
		return StatusAuthRequired
	case v.validation != nil:
		return StatusInvalid
	case !v.dctx.Complete():
		return StatusIdle
	case v.validating:
		return StatusValidating
	}
	for _, st := range v.kinds {
		if st.Status == LoadLoading || st.Status == LoadPending {
			return StatusLoading
		}
	}
	return StatusReady
}

// Subscribe registers fn for every state change. fn runs on the goroutine
// that made the change and must not block. The returned func unsubscribes.
func (v *View) Subscribe(fn func(Snapshot)) func() {
	v.mu.Lock()
	id := v.nextObs
	v.nextObs++
	v.observers[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.observers, id)
		v.mu.Unlock()
	}
}

func (v *View) notify() {
	v.mu.RLock()
	if len(v.observers) == 0 {
		v.mu.RUnlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(v.observers))
	for _, fn := range v.observers {
		fns = append(fns, fn)
	}
	v.mu.RUnlock()

	snap := v.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (v *View) touch() {
	v.mu.Lock()
	v.lastAccessed = time.Now()
	v.mu.Unlock()
}

// LastAccess returns when the view was last used by a request or connection.
func (v *View) LastAccess() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastAccessed
}

// close cancels pending loads and releases every widget.
func (v *View) close() {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.generation++
	v.observers = make(map[int]func(Snapshot))
	v.mu.Unlock()
	v.coord.ReleaseAll()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
