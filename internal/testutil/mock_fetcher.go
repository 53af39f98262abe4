// mock_fetcher.go - In-memory data-fetch fake for session and API tests
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/source"
)

// MockFetcher serves canned rows per kind. Errors and delays can be set per
// kind; calls are counted.
type MockFetcher struct {
	mu        sync.Mutex
	rows      map[models.Kind][]models.RawRow
	errs      map[models.Kind]error
	delays    map[models.Kind]time.Duration
	gates     map[models.Kind]chan struct{}
	options   map[models.DrilldownLevel][]models.Option
	equipment map[string]*models.EquipmentInfo
	infoErr   error
	calls     map[models.Kind]int
}

// NewMockFetcher creates an empty fetcher. Kinds without rows return none.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		rows:      make(map[models.Kind][]models.RawRow),
		errs:      make(map[models.Kind]error),
		delays:    make(map[models.Kind]time.Duration),
		gates:     make(map[models.Kind]chan struct{}),
		options:   make(map[models.DrilldownLevel][]models.Option),
		equipment: make(map[string]*models.EquipmentInfo),
		calls:     make(map[models.Kind]int),
	}
}

// SetRows sets the rows returned for kind.
func (m *MockFetcher) SetRows(kind models.Kind, rows ...models.RawRow) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[kind] = rows
	return m
}

// SetError makes kind fail with err. A nil err clears it.
func (m *MockFetcher) SetError(kind models.Kind, err error) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, kind)
	} else {
		m.errs[kind] = err
	}
	return m
}

// SetDelay delays every fetch of kind.
func (m *MockFetcher) SetDelay(kind models.Kind, d time.Duration) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[kind] = d
	return m
}

// Hold blocks fetches of kind until the returned func is called.
func (m *MockFetcher) Hold(kind models.Kind) (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gates[kind] = gate
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gates[kind] == gate {
				delete(m.gates, kind)
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// SetOptions sets the options returned for level regardless of the parent.
func (m *MockFetcher) SetOptions(level models.DrilldownLevel, opts ...models.Option) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[level] = opts
	return m
}

// AddEquipment registers equipment returned by EquipmentInfo.
func (m *MockFetcher) AddEquipment(info models.EquipmentInfo) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equipment[info.LineID+"|"+info.EqpID] = &info
	return m
}

// SetInfoError makes EquipmentInfo fail with err.
func (m *MockFetcher) SetInfoError(err error) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoErr = err
	return m
}

// Calls returns how many times kind was fetched.
func (m *MockFetcher) Calls(kind models.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func (m *MockFetcher) FetchLogs(ctx context.Context, kind models.Kind, dctx models.DrilldownContext) ([]models.RawRow, error) {
	m.mu.Lock()
	m.calls[kind]++
	rows := m.rows[kind]
	err := m.errs[kind]
	delay := m.delays[kind]
	gate := m.gates[kind]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.RawRow, len(rows))
	for i, r := range rows {
		cp := make(models.RawRow, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}

func (m *MockFetcher) FetchOptions(ctx context.Context, level models.DrilldownLevel, parent models.DrilldownContext) ([]models.Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Option(nil), m.options[level]...), nil
}

func (m *MockFetcher) EquipmentInfo(ctx context.Context, lineID, eqpID string) (*models.EquipmentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	info, ok := m.equipment[lineID+"|"+eqpID]
	if !ok {
		return nil, &source.NotFoundError{Resource: "equipment " + eqpID}
	}
	cp := *info
	return &cp, nil
}
