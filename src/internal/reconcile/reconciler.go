// Package reconcile turns kernel rule notifications into deletion events for
// the rule owner.
//
// Most rules in the kernel belong to someone else, so every notification
// passes a chain of filters and anything that fails one is dropped without
// an error. Only deletions of table lookup rules bound to an interface the
// namespace knows about reach the owner. The reconciler never reinstalls a
// rule itself.
package reconcile

import (
	"context"
	stderrors "errors"
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/fibrule"
	"github.com/maksimkurb/pbrsync/src/internal/kernel"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// Resolver looks up interfaces in the reconciler's namespace.
// *netlink.Handle implements it.
type Resolver interface {
	LinkByName(name string) (netlink.Link, error)
}

// Source delivers notification batches. *nl.NetlinkSocket implements it.
type Source interface {
	Receive() ([]syscall.NetlinkMessage, *unix.SockaddrNetlink, error)
	Close()
}

// DeleteFunc is called with every kernel-deleted rule the owner may care about.
type DeleteFunc func(r rule.Rule)

// Reconciler classifies notifications of one namespace.
type Reconciler struct {
	name      string
	resolver  Resolver
	onDeleted DeleteFunc
	metrics   *metrics.Registry
}

// New creates a Reconciler for the namespace name.
func New(name string, resolver Resolver, onDeleted DeleteFunc, m *metrics.Registry) *Reconciler {
	return &Reconciler{
		name:      name,
		resolver:  resolver,
		onDeleted: onDeleted,
		metrics:   m,
	}
}

// ReadExisting would load the kernel's current rules at startup. Bulk
// resynchronization is not done here, so it returns immediately.
func (r *Reconciler) ReadExisting(ctx context.Context) error {
	log.Debugf("[%s] skipping read of existing kernel rules", kernel.DisplayName(r.name))
	return ctx.Err()
}

// Run handles notifications from src in arrival order until ctx is done.
// src is closed on return.
func (r *Reconciler) Run(ctx context.Context, src Source) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		src.Close()
	}()

	for {
		msgs, _, err := src.Receive()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if isTransient(err) {
				continue
			}
			return errors.NewKernelError("receive rule notifications", err)
		}

		for _, m := range msgs {
			r.Handle(m)
		}
	}
}

// isTransient reports receive timeouts and interrupted calls.
func isTransient(err error) bool {
	return stderrors.Is(err, unix.EAGAIN) || stderrors.Is(err, unix.EINTR)
}

// Handle classifies one notification and calls the delete callback when it
// is accepted.
func (r *Reconciler) Handle(m syscall.NetlinkMessage) Verdict {
	verdict, deleted := r.classify(m)

	r.metrics.ObserveNotification(r.name, verdict.String())
	if verdict != Accepted {
		log.Debugf("[%s] Rx %s dropped: %s",
			kernel.DisplayName(r.name), fibrule.MsgTypeName(m.Header.Type), verdict)
		return verdict
	}

	log.Debugf("[%s] Rx %s accepted [%s]",
		kernel.DisplayName(r.name), fibrule.MsgTypeName(m.Header.Type), deleted)
	if r.onDeleted != nil {
		r.onDeleted(deleted)
	}
	return Accepted
}

func (r *Reconciler) classify(m syscall.NetlinkMessage) (Verdict, rule.Rule) {
	switch m.Header.Type {
	case unix.RTM_DELRULE:
	case unix.RTM_NEWRULE:
		// Rules added behind our back are not tracked yet.
		return AddNotYetSupported, rule.Rule{}
	default:
		return NotRoutingRule, rule.Rule{}
	}

	h, err := fibrule.ParseHeader(m.Data)
	if err != nil {
		return Malformed, rule.Rule{}
	}

	if h.Family != unix.AF_INET && h.Family != unix.AF_INET6 {
		return WrongFamily, rule.Rule{}
	}

	if h.Action != unix.FR_ACT_TO_TBL {
		return NotToTable, rule.Rule{}
	}

	attrs, err := fibrule.ParseAttributes(m.Data[fibrule.HeaderLen:])
	if err != nil {
		return Malformed, rule.Rule{}
	}

	if !attrs.HasIfName || attrs.IfName == "" {
		return NoInterfaceAttr, rule.Rule{}
	}

	if r.resolver == nil {
		return UnknownInterface, rule.Rule{}
	}
	if _, err := r.resolver.LinkByName(attrs.IfName); err != nil {
		return UnknownInterface, rule.Rule{}
	}

	decoded := &fibrule.Decoded{Type: m.Header.Type, Header: h, Attrs: attrs}
	deleted, err := decoded.Rule()
	if err != nil {
		return Malformed, rule.Rule{}
	}
	return Accepted, deleted
}
