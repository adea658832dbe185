package commands

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/kernel"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
	"github.com/maksimkurb/pbrsync/src/internal/networking"
	"github.com/maksimkurb/pbrsync/src/internal/pbrmap"
	"github.com/maksimkurb/pbrsync/src/internal/reconcile"
	"github.com/maksimkurb/pbrsync/src/internal/southbound"
)

type Runner interface {
	Init(args []string, globalArgs *AppContext) error
	Run() error
	Name() string
}

type AppContext struct {
	ConfigPath string
	Verbose    bool
}

// loadAndValidateConfigOrFail loads configuration from file and validates it.
// Interfaces are checked separately since the kernel accepts rules for
// interfaces that do not exist yet.
func loadAndValidateConfigOrFail(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return cfg, nil
}

// nsStack is the kernel plumbing of one namespace.
type nsStack struct {
	ns         *networking.Namespace
	channel    *kernel.Channel
	reconciler *reconcile.Reconciler
}

// pbrStack connects a rule manager to every namespace of the config.
type pbrStack struct {
	metrics    *metrics.Registry
	manager    *pbrmap.Manager
	namespaces []*nsStack
}

// openStack opens every configured namespace and wires a kernel channel,
// a synchronizer and a reconciler for each of them. A read-only stack only
// inspects the kernel rule table. m may be nil.
func openStack(cfg *config.Config, m *metrics.Registry, readOnly bool) (*pbrStack, error) {
	s := &pbrStack{
		metrics: m,
		manager: pbrmap.NewManager(cfg.General.ReassertDeleted),
	}

	for _, name := range cfg.NamespaceNames() {
		ns, err := networking.OpenNamespace(name)
		if err != nil {
			s.Close()
			return nil, err
		}

		n := &nsStack{ns: ns}
		s.namespaces = append(s.namespaces, n)

		if readOnly {
			s.manager.AddNamespace(name, nil, ns)
		} else {
			sock, err := ns.CommandSocket()
			if err != nil {
				s.Close()
				return nil, err
			}

			n.channel = kernel.NewChannel(name, sock, cfg.General.MaxMessageSize, m)
			n.reconciler = reconcile.New(name, ns, s.manager.OnKernelDeleted(name), m)
			s.manager.AddNamespace(name, southbound.New(name, n.channel, s.manager.OnStatus(name), m), ns)
		}

		if ifaces, err := ns.Interfaces(); err != nil {
			log.Warnf("Failed to list interfaces of netns %s: %v", kernel.DisplayName(name), err)
		} else if missing := networking.MissingInterfaces(cfg, name, ifaces); len(missing) > 0 {
			networking.PrintMissingInterfacesHelp()
		}
	}

	return s, nil
}

// runChannels runs the kernel channels while fn executes and stops them
// once it returns.
func (s *pbrStack) runChannels(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range s.namespaces {
		channel := n.channel
		if channel == nil {
			continue
		}
		g.Go(func() error {
			return channel.Run(gctx)
		})
	}

	err := fn(gctx)
	cancel()

	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) && err == nil {
		err = werr
	}
	return err
}

// Close releases the namespaces and the sockets of channels that never ran.
func (s *pbrStack) Close() {
	for _, n := range s.namespaces {
		if n.channel != nil {
			n.channel.Close()
		}
		n.ns.Close()
	}
}
