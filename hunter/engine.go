package hunter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MissionStore is the persistence the engine needs. The full store has
// more surface (Add, Remove, List); the engine deliberately sees only
// the read-then-update pair.
type MissionStore interface {
	// GetByIndex returns the mission at index for issuer, or (nil, nil)
	// when no such mission exists.
	GetByIndex(ctx context.Context, issuer string, index int) (*Mission, error)
	// UpdateContent overwrites the stored content of the mission with the
	// given ID. It returns false when the mission no longer exists, in
	// which case the write is a no-op.
	UpdateContent(ctx context.Context, missionID, content string) (bool, error)
}

// Notifier receives evaluation outcomes. Implementations live outside
// the engine (see the notify package); delivery failures are theirs to
// log and never roll back persisted state.
type Notifier interface {
	NotifyChange(ctx context.Context, issuer string, mission *Mission, changed bool) error
	NotifyError(ctx context.Context, issuer string, mission *Mission, evalErr error) error
}

// Engine evaluates missions: extract, transform, compare, persist. It is
// safe for concurrent use; evaluations of the same (issuer, index) are
// serialized so a get/update pair never interleaves with itself.
type Engine struct {
	store   MissionStore
	fetcher Fetcher
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*slotLock
}

// slotLock serializes evaluations of one mission slot. Refcounted so
// the engine's lock map shrinks back when a slot has no evaluation in
// flight; long-running processes with mission churn don't accumulate
// one entry per slot ever seen.
type slotLock struct {
	sync.Mutex
	refs int
}

// NewEngine creates an Engine.
func NewEngine(store MissionStore, fetcher Fetcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		locks:   make(map[string]*slotLock),
	}
}

// acquire takes the advisory lock for one mission slot, creating it on
// first use.
func (e *Engine) acquire(key string) *slotLock {
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &slotLock{}
		e.locks[key] = l
	}
	l.refs++
	e.mu.Unlock()
	l.Lock()
	return l
}

// release unlocks the slot and drops the map entry once nobody waits on it.
func (e *Engine) release(key string, l *slotLock) {
	l.Unlock()
	e.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, key)
	}
	e.mu.Unlock()
}

// Evaluate runs one evaluation cycle for the mission at (issuer, index).
// All failures are converted into a Failed outcome; nothing escapes to
// the caller, so one mission can never abort the others in a cycle.
//
// First-run policy: when no content has been stored yet, the extracted
// content is persisted and the outcome is Unchanged; registering a
// mission must not fire a change notification.
func (e *Engine) Evaluate(ctx context.Context, issuer string, index int) Outcome {
	key := fmt.Sprintf("%s#%d", issuer, index)
	lock := e.acquire(key)
	defer e.release(key, lock)

	log := e.logger.With("issuer", issuer, "index", index)

	mission, err := e.store.GetByIndex(ctx, issuer, index)
	if err != nil {
		log.Error("hunter: load mission", "error", err)
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("load mission: %w", err)}
	}
	if mission == nil {
		log.Debug("hunter: mission gone, skipping")
		return Outcome{Status: StatusSkipped}
	}
	log = log.With("type", mission.Type, "url", mission.URL)

	content, err := Extract(ctx, e.fetcher, mission)
	if err != nil {
		log.Warn("hunter: extract failed", "error", err)
		return Outcome{Status: StatusFailed, Mission: mission, Err: err}
	}

	transformed, err := Transform(content, mission.ContentReplace)
	if err != nil {
		log.Warn("hunter: transform failed", "error", err)
		return Outcome{Status: StatusFailed, Mission: mission, Err: err}
	}

	if mission.LastContent == nil {
		// First evaluation: store and report no change.
		applied, err := e.store.UpdateContent(ctx, mission.ID, transformed)
		if err != nil {
			log.Error("hunter: store initial content", "error", err)
			return Outcome{Status: StatusFailed, Mission: mission, Err: fmt.Errorf("store content: %w", err)}
		}
		if !applied {
			log.Debug("hunter: mission deleted mid-evaluation, result discarded")
			return Outcome{Status: StatusSkipped}
		}
		log.Info("hunter: initialized", "content_len", len(transformed))
		return Outcome{Status: StatusUnchanged, Mission: mission}
	}

	if *mission.LastContent == transformed {
		log.Debug("hunter: unchanged")
		return Outcome{Status: StatusUnchanged, Mission: mission}
	}

	applied, err := e.store.UpdateContent(ctx, mission.ID, transformed)
	if err != nil {
		log.Error("hunter: store content", "error", err)
		return Outcome{Status: StatusFailed, Mission: mission, Err: fmt.Errorf("store content: %w", err)}
	}
	if !applied {
		log.Debug("hunter: mission deleted mid-evaluation, result discarded")
		return Outcome{Status: StatusSkipped}
	}

	log.Info("hunter: changed", "content_len", len(transformed))
	return Outcome{Status: StatusChanged, Mission: mission}
}

// Dispatch reports an outcome to the notifier: Changed becomes a change
// notification, Failed an error report, Unchanged and Skipped stay
// silent. Notifier failures are logged and swallowed: the persisted
// comparison state and the notification channel are independent, so a
// delivery failure must not trigger re-notification storms.
func Dispatch(ctx context.Context, n Notifier, logger *slog.Logger, issuer string, out Outcome) {
	if logger == nil {
		logger = slog.Default()
	}
	switch out.Status {
	case StatusChanged:
		if err := n.NotifyChange(ctx, issuer, out.Mission, true); err != nil {
			logger.Warn("hunter: notify change failed", "issuer", issuer, "error", err)
		}
	case StatusFailed:
		if err := n.NotifyError(ctx, issuer, out.Mission, out.Err); err != nil {
			logger.Warn("hunter: notify error failed", "issuer", issuer, "error", err)
		}
	}
}
