// Package southbound installs and removes rules in the kernel and reports
// each outcome to the rule owner.
package southbound

import (
	"context"

	"github.com/maksimkurb/pbrsync/src/internal/fibrule"
	"github.com/maksimkurb/pbrsync/src/internal/kernel"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// Sender performs one kernel round trip. *kernel.Channel implements it.
type Sender interface {
	Send(ctx context.Context, op fibrule.Op, r rule.Rule) error
}

// StatusFunc receives the outcome of every Install and Uninstall call.
type StatusFunc func(r rule.Rule, status rule.Status)

// Synchronizer is the owner-facing entry point for one namespace.
type Synchronizer struct {
	name     string
	sender   Sender
	onStatus StatusFunc
	metrics  *metrics.Registry
}

// New creates a Synchronizer. onStatus may be nil.
func New(name string, sender Sender, onStatus StatusFunc, m *metrics.Registry) *Synchronizer {
	return &Synchronizer{
		name:     name,
		sender:   sender,
		onStatus: onStatus,
		metrics:  m,
	}
}

// Install adds r to the kernel. The status callback fires exactly once.
func (s *Synchronizer) Install(ctx context.Context, r rule.Rule) rule.Status {
	return s.apply(ctx, fibrule.OpAdd, r, rule.InstallSuccess, rule.InstallFailure)
}

// Uninstall removes r from the kernel. The status callback fires exactly once.
func (s *Synchronizer) Uninstall(ctx context.Context, r rule.Rule) rule.Status {
	return s.apply(ctx, fibrule.OpDelete, r, rule.DeleteSuccess, rule.DeleteFailure)
}

func (s *Synchronizer) apply(ctx context.Context, op fibrule.Op, r rule.Rule, ok, failed rule.Status) rule.Status {
	status := ok

	err := r.Validate()
	if err == nil {
		err = s.sender.Send(ctx, op, r)
	}
	if err != nil {
		status = failed
		log.Warnf("[%s] %s [%s] failed: %v", kernel.DisplayName(s.name), op, r, err)
	} else {
		log.Debugf("[%s] %s [%s] acknowledged", kernel.DisplayName(s.name), op, r)
	}

	s.metrics.ObserveStatus(s.name, status)
	if s.onStatus != nil {
		s.onStatus(r, status)
	}
	return status
}
