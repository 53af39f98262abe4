package parser

import (
	"sync"
)

// MaxInternPoolSize bounds the pool. Past it, strings are returned as-is.
const MaxInternPoolSize = 100000

// StringIntern deduplicates the small vocabulary of repeated log strings
// (event types, operators, process/step/part ids) across normalized batches.
type StringIntern struct {
	mu   sync.RWMutex
	pool map[string]string
}

// NewStringIntern creates an empty pool.
func NewStringIntern() *StringIntern {
	return &StringIntern{
		pool: make(map[string]string, 1024),
	}
}

// Intern returns the canonical copy of s.
func (si *StringIntern) Intern(s string) string {
	if s == "" {
		return s
	}
	si.mu.RLock()
	pooled, ok := si.pool[s]
	full := len(si.pool) >= MaxInternPoolSize
	si.mu.RUnlock()
	if ok {
		return pooled
	}
	if full {
		return s
	}

	si.mu.Lock()
	defer si.mu.Unlock()
	if pooled, ok := si.pool[s]; ok {
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		return s
	}
	si.pool[s] = s
	return s
}

// Len returns the number of pooled strings.
func (si *StringIntern) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.pool)
}

// Clear empties the pool.
func (si *StringIntern) Clear() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.pool = make(map[string]string, 1024)
}

var globalIntern = NewStringIntern()

// GetGlobalIntern returns the pool shared by the default registry.
func GetGlobalIntern() *StringIntern {
	return globalIntern
}

// ResetGlobalIntern clears the shared pool.
func ResetGlobalIntern() {
	globalIntern.Clear()
}
