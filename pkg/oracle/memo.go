package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// Memo memoizes verdicts keyed on the normalized (variable universe,
// formula text) pair. Concurrent identical queries share one call.
// Errors are never cached.
type Memo struct {
	next ltl.Oracle

	mu      sync.RWMutex
	results map[string]bool
	flight  singleflight.Group

	hits   int64
	misses int64
}

// NewMemo wraps an oracle with a verdict cache.
func NewMemo(next ltl.Oracle) *Memo {
	return &Memo{next: next, results: make(map[string]bool)}
}

// Satisfiable implements ltl.Oracle.
func (m *Memo) Satisfiable(ctx context.Context, vars ltl.VariableSet, formulas ...string) (bool, error) {
	key := memoKey("sat", vars, formulas)
	return m.lookup(key, func() (bool, error) {
		return m.next.Satisfiable(ctx, vars, formulas...)
	})
}

// Valid implements ltl.Oracle.
func (m *Memo) Valid(ctx context.Context, vars ltl.VariableSet, formula string) (bool, error) {
	key := memoKey("valid", vars, []string{formula})
	return m.lookup(key, func() (bool, error) {
		return m.next.Valid(ctx, vars, formula)
	})
}

// Stats returns the number of cache hits and misses.
func (m *Memo) Stats() (hits, misses int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits, m.misses
}

func (m *Memo) lookup(key string, compute func() (bool, error)) (bool, error) {
	Registry()
	m.mu.Lock()
	if v, ok := m.results[key]; ok {
		m.hits++
		m.mu.Unlock()
		cacheLookups.WithLabelValues("hit").Inc()
		return v, nil
	}
	m.misses++
	m.mu.Unlock()

	v, err, shared := m.flight.Do(key, func() (any, error) {
		ok, err := compute()
		if err != nil {
			return false, err
		}
		m.mu.Lock()
		m.results[key] = ok
		m.mu.Unlock()
		return ok, nil
	})
	if shared {
		cacheLookups.WithLabelValues("shared").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// memoKey hashes the query kind, declarations and whitespace-normalized texts.
func memoKey(kind string, vars ltl.VariableSet, formulas []string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(vars.Key()))
	for _, f := range formulas {
		h.Write([]byte{0})
		h.Write([]byte(strings.Join(strings.Fields(f), " ")))
	}
	return hex.EncodeToString(h.Sum(nil))
}
