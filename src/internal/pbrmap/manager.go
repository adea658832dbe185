// Package pbrmap owns the rules pbrsync manages. It expands pbr maps bound to
// interfaces into kernel rules, installs and removes them through one
// synchronizer per namespace, and tracks what the kernel reported back.
//
// A rule the kernel deletes behind the daemon's back is reinstalled when
// reassertion is enabled. Rules the manager removes itself are marked as no
// longer desired first, so their deletion notifications are ignored.
package pbrmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/kernel"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/reconcile"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
	"github.com/maksimkurb/pbrsync/src/internal/southbound"
)

const reassertQueueSize = 256

// Synchronizer installs and removes rules in one namespace.
// *southbound.Synchronizer implements it.
type Synchronizer interface {
	Install(ctx context.Context, r rule.Rule) rule.Status
	Uninstall(ctx context.Context, r rule.Rule) rule.Status
}

// Checker reports whether the kernel already holds a rule.
// *networking.Namespace implements it.
type Checker interface {
	IsInstalled(r rule.Rule) (bool, error)
}

type backend struct {
	sync    Synchronizer
	checker Checker
}

// Manager tracks the desired and installed state of every entry.
type Manager struct {
	mu       sync.Mutex
	entries  map[entryKey]*Entry
	backends map[string]*backend
	reassert bool

	reassertQueue chan entryKey
	now           func() time.Time
}

func NewManager(reassert bool) *Manager {
	return &Manager{
		entries:       make(map[entryKey]*Entry),
		backends:      make(map[string]*backend),
		reassert:      reassert,
		reassertQueue: make(chan entryKey, reassertQueueSize),
		now:           time.Now,
	}
}

// AddNamespace registers the synchronizer of a namespace. Either may be nil;
// a namespace without a synchronizer can only be inspected.
func (m *Manager) AddNamespace(name string, s Synchronizer, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[name] = &backend{sync: s, checker: checker}
}

// OnStatus returns the status callback for the synchronizer of namespace ns.
func (m *Manager) OnStatus(ns string) southbound.StatusFunc {
	return func(r rule.Rule, status rule.Status) {
		m.record(ns, r, status)
	}
}

// OnKernelDeleted returns the deletion callback for the reconciler of namespace ns.
func (m *Manager) OnKernelDeleted(ns string) reconcile.DeleteFunc {
	return func(r rule.Rule) {
		k := entryKey{namespace: ns, rule: r}

		m.mu.Lock()
		e, ok := m.entries[k]
		if !ok || !e.Desired {
			m.mu.Unlock()
			log.Debugf("[%s] ignoring kernel deletion of unmanaged rule [%s]", kernel.DisplayName(ns), r)
			return
		}
		e.Installed = false
		e.Updated = m.now()
		mapName, reassert := e.Map, m.reassert
		m.mu.Unlock()

		log.Warnf("[%s] rule [%s] of pbr_map %s was deleted from the kernel", kernel.DisplayName(ns), r, mapName)
		if !reassert {
			return
		}

		select {
		case m.reassertQueue <- k:
		default:
			log.Warnf("[%s] reassert queue is full, rule [%s] stays removed", kernel.DisplayName(ns), r)
		}
	}
}

// Run reinstalls kernel-deleted rules until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k := <-m.reassertQueue:
			m.mu.Lock()
			e, ok := m.entries[k]
			needed := ok && e.Desired && !e.Installed
			m.mu.Unlock()

			if needed {
				log.Infof("[%s] re-installing rule [%s]", kernel.DisplayName(k.namespace), k.rule)
				m.install(ctx, e)
			}
		}
	}
}

// Load replaces the tracked entries with those of cfg without touching the
// kernel. Installed is taken from the namespace checkers.
func (m *Manager) Load(cfg *config.Config) {
	entries := BuildEntries(cfg)

	m.mu.Lock()
	m.reassert = cfg.General.ReassertDeleted
	m.entries = make(map[entryKey]*Entry, len(entries))
	for _, e := range entries {
		m.entries[e.key()] = e
	}
	m.mu.Unlock()

	for _, e := range entries {
		m.checkInstalled(e)
	}
}

// Apply makes the kernel match cfg: rules no longer configured are removed,
// missing ones are installed. It returns an error when any operation failed.
func (m *Manager) Apply(ctx context.Context, cfg *config.Config) error {
	wanted := BuildEntries(cfg)

	m.mu.Lock()
	m.reassert = cfg.General.ReassertDeleted

	keep := make(map[entryKey]bool, len(wanted))
	var add []*Entry
	for _, w := range wanted {
		k := w.key()
		keep[k] = true

		if cur, ok := m.entries[k]; ok {
			cur.Map, cur.Seq = w.Map, w.Seq
			cur.Desired = true
			if !cur.Installed {
				add = append(add, cur)
			}
			continue
		}
		m.entries[k] = w
		add = append(add, w)
	}

	var remove []*Entry
	for k, e := range m.entries {
		if !keep[k] && e.Desired {
			e.Desired = false
			remove = append(remove, e)
		}
	}
	m.mu.Unlock()

	sortEntries(add)
	sortEntries(remove)

	failed := 0
	for _, e := range remove {
		if !m.uninstall(ctx, e).Succeeded() {
			failed++
		}
	}
	for _, e := range add {
		if installed, _ := m.checkInstalled(e); installed {
			continue
		}
		if !m.install(ctx, e).Succeeded() {
			failed++
		}
	}

	log.Infof("Applied %d pbr rules (%d added, %d removed, %d failed)", len(wanted), len(add), len(remove), failed)
	if failed > 0 {
		return errors.NewKernelError(fmt.Sprintf("%d rule operation(s) failed", failed), nil)
	}
	return nil
}

// Resync checks every desired rule against the kernel and installs the
// ones that are missing. It recovers from deletion notifications that were
// lost, e.g. when the notification socket overflowed.
func (m *Manager) Resync(ctx context.Context) error {
	m.mu.Lock()
	var check []*Entry
	for _, e := range m.entries {
		if e.Desired {
			check = append(check, e)
		}
	}
	m.mu.Unlock()

	sortEntries(check)

	added, failed := 0, 0
	for _, e := range check {
		installed, checked := m.checkInstalled(e)
		if installed || !checked {
			continue
		}
		added++
		if !m.install(ctx, e).Succeeded() {
			failed++
		}
	}

	log.Infof("Resynced %d pbr rules (%d re-installed, %d failed)", len(check), added-failed, failed)
	if failed > 0 {
		return errors.NewKernelError(fmt.Sprintf("%d rule operation(s) failed", failed), nil)
	}
	return nil
}

// Undo removes every installed rule and forgets the entries.
func (m *Manager) Undo(ctx context.Context) error {
	m.mu.Lock()
	var remove []*Entry
	for k, e := range m.entries {
		e.Desired = false
		if e.Installed {
			remove = append(remove, e)
		} else {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()

	sortEntries(remove)

	failed := 0
	for _, e := range remove {
		if !m.uninstall(ctx, e).Succeeded() {
			failed++
		}
	}

	log.Infof("Removed %d pbr rules, %d failed", len(remove)-failed, failed)
	if failed > 0 {
		return errors.NewKernelError(fmt.Sprintf("%d rule operation(s) failed", failed), nil)
	}
	return nil
}

// Snapshot returns copies of all entries in display order.
func (m *Manager) Snapshot() []Entry {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sortEntries(entries)

	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = *e
	}
	m.mu.Unlock()
	return out
}

func (m *Manager) backend(ns string) *backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backends[ns]
}

func (m *Manager) install(ctx context.Context, e *Entry) rule.Status {
	b := m.backend(e.Namespace)
	if b == nil || b.sync == nil {
		log.Errorf("[%s] namespace is not available, cannot install [%s]", kernel.DisplayName(e.Namespace), e.Rule)
		m.record(e.Namespace, e.Rule, rule.InstallFailure)
		return rule.InstallFailure
	}
	return b.sync.Install(ctx, e.Rule)
}

func (m *Manager) uninstall(ctx context.Context, e *Entry) rule.Status {
	b := m.backend(e.Namespace)
	if b == nil || b.sync == nil {
		log.Errorf("[%s] namespace is not available, cannot uninstall [%s]", kernel.DisplayName(e.Namespace), e.Rule)
		m.record(e.Namespace, e.Rule, rule.DeleteFailure)
		return rule.DeleteFailure
	}
	return b.sync.Uninstall(ctx, e.Rule)
}

// checkInstalled marks e installed when the kernel already holds it. checked is
// false when the namespace cannot be inspected.
func (m *Manager) checkInstalled(e *Entry) (installed, checked bool) {
	b := m.backend(e.Namespace)
	if b == nil || b.checker == nil {
		return false, false
	}

	ok, err := b.checker.IsInstalled(e.Rule)
	if err != nil {
		return false, false
	}

	m.mu.Lock()
	e.Installed = ok
	e.Updated = m.now()
	m.mu.Unlock()

	if ok {
		log.Debugf("[%s] rule [%s] is already installed", kernel.DisplayName(e.Namespace), e.Rule)
	}
	return ok, true
}

func (m *Manager) record(ns string, r rule.Rule, status rule.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{namespace: ns, rule: r}
	e, ok := m.entries[k]
	if !ok {
		return
	}

	e.Status, e.HasStatus = status, true
	e.Updated = m.now()

	switch status {
	case rule.InstallSuccess:
		e.Installed = true
	case rule.InstallFailure:
		e.Installed = false
	case rule.DeleteSuccess:
		e.Installed = false
		if !e.Desired {
			delete(m.entries, k)
		}
	}
}
