package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maksimkurb/pbrsync/src/internal/api"
	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/kernel"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func CreateServiceCommand() *ServiceCommand {
	sc := &ServiceCommand{
		fs: flag.NewFlagSet("service", flag.ExitOnError),
	}

	sc.fs.BoolVar(&sc.KeepRules, "keep-rules", false, "Leave installed rules in the kernel on shutdown")

	return sc
}

type ServiceCommand struct {
	fs        *flag.FlagSet
	cfg       *config.Config
	ctx       *AppContext
	KeepRules bool

	metrics      *metrics.Registry
	configHasher *config.ConfigHasher
	stack        *pbrStack

	// resync is signalled when a reconciler had to resubscribe
	resync chan struct{}
}

func (s *ServiceCommand) Name() string {
	return s.fs.Name()
}

func (s *ServiceCommand) Init(args []string, ctx *AppContext) error {
	s.ctx = ctx

	if err := s.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		s.cfg = cfg
	}

	s.metrics = metrics.NewRegistry()
	s.configHasher = config.NewConfigHasher(ctx.ConfigPath)
	s.resync = make(chan struct{}, 1)

	return nil
}

func (s *ServiceCommand) Run() error {
	log.Infof("Starting pbrsync service...")

	stack, err := openStack(s.cfg, s.metrics, false)
	if err != nil {
		return fmt.Errorf("failed to open namespaces: %w", err)
	}
	defer stack.Close()
	s.stack = stack

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	// Kernel channels outlive the other workers so rules can be removed on shutdown
	kernelCtx, stopKernel := context.WithCancel(context.Background())
	defer stopKernel()
	kg, kctx := errgroup.WithContext(kernelCtx)
	for _, n := range stack.namespaces {
		channel := n.channel
		kg.Go(func() error {
			return channel.Run(kctx)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-kctx.Done():
			return fmt.Errorf("kernel channel stopped: %w", context.Cause(kctx))
		}
	})

	for _, n := range stack.namespaces {
		runner := s.reconcilerRunner(n)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	g.Go(func() error {
		if err := stack.manager.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if bindAddr := s.cfg.General.APIBindAddress; bindAddr != "" {
		s.startAPIServer(gctx, g, bindAddr)
	} else {
		log.Infof("REST API is disabled")
	}

	g.Go(func() error {
		return s.control(gctx, cancel, sigChan)
	})

	err = g.Wait()

	if s.KeepRules {
		log.Infof("Leaving pbr rules in the kernel")
	} else {
		log.Infof("Removing pbr rules...")
		undoCtx, cancelUndo := context.WithTimeout(kctx, shutdownTimeout)
		if uerr := stack.manager.Undo(undoCtx); uerr != nil {
			log.Errorf("Failed to remove pbr rules: %v", uerr)
		}
		cancelUndo()
	}

	stopKernel()
	if kerr := kg.Wait(); kerr != nil && !errors.Is(kerr, context.Canceled) {
		log.Errorf("Kernel channel error: %v", kerr)
	}

	log.Infof("Service stopped")
	return err
}

// control applies the configuration and handles signals until shutdown.
func (s *ServiceCommand) control(ctx context.Context, cancel context.CancelFunc, sigChan <-chan os.Signal) error {
	s.apply(ctx, s.cfg)

	log.Infof("Service started successfully.")
	log.Infof("Send SIGHUP to reload configuration, SIGUSR1 to resync rules with the kernel")

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.resync:
			log.Infof("Notifications may have been lost, resyncing rules...")
			if err := s.stack.manager.Resync(ctx); err != nil {
				log.Errorf("Failed to resync rules: %v", err)
			}

		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				log.Infof("Received SIGHUP signal, reloading configuration...")
				cfg, err := loadAndValidateConfigOrFail(s.ctx.ConfigPath)
				if err != nil {
					log.Errorf("Failed to reload configuration: %v", err)
					continue
				}
				for _, reason := range restartRequired(s.cfg, cfg) {
					log.Warnf("%s, restart the service to apply it", reason)
				}
				s.apply(ctx, cfg)

			case syscall.SIGUSR1:
				log.Infof("Received SIGUSR1 signal, resyncing rules...")
				if err := s.stack.manager.Resync(ctx); err != nil {
					log.Errorf("Failed to resync rules: %v", err)
				}

			case syscall.SIGINT, syscall.SIGTERM:
				log.Infof("Received signal %v, shutting down...", sig)
				cancel()
				return nil
			}
		}
	}
}

// apply installs cfg and records it as the running configuration.
func (s *ServiceCommand) apply(ctx context.Context, cfg *config.Config) {
	if err := s.stack.manager.Apply(ctx, cfg); err != nil {
		log.Errorf("Failed to apply pbr rules: %v", err)
	}
	if err := s.configHasher.SetActiveConfig(cfg); err != nil {
		log.Warnf("Failed to hash configuration: %v", err)
	}
	s.cfg = cfg
}

// reconcilerRunner subscribes the reconciler of n to rule notifications,
// subscribing again after failures such as a receive buffer overflow.
func (s *ServiceCommand) reconcilerRunner(n *nsStack) *RestartableRunner {
	first := true
	return NewRestartableRunner(RunnerConfig{
		Name:           fmt.Sprintf("Reconciler [%s]", kernel.DisplayName(n.ns.Name)),
		RestartBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}, func(ctx context.Context) error {
		sock, err := n.ns.Subscribe()
		if err != nil {
			return err
		}

		if first {
			first = false
		} else {
			select {
			case s.resync <- struct{}{}:
			default:
			}
		}

		if err := n.reconciler.ReadExisting(ctx); err != nil {
			sock.Close()
			return err
		}
		return n.reconciler.Run(ctx, sock)
	})
}

// startAPIServer runs the read-only REST API in g.
func (s *ServiceCommand) startAPIServer(ctx context.Context, g *errgroup.Group, bindAddr string) {
	log.Infof("Starting pbrsync API server on %s", bindAddr)
	log.Infof("")
	log.Infof("Access restricted to private subnets only:")
	log.Infof("  IPv4: 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16, 127.0.0.0/8")
	log.Infof("  IPv6: fc00::/7, fe80::/10, ::1/128")
	log.Infof("")

	router := api.NewRouter(s.stack.manager, s.configHasher, s.metrics)
	server := api.NewServer(bindAddr, router)

	// A failing API server does not stop rule management
	g.Go(func() error {
		if err := server.Run(ctx); err != nil {
			log.Errorf("API server stopped: %v", err)
		}
		return nil
	})
}

// restartRequired lists the settings of next that a running service cannot
// pick up.
func restartRequired(cur, next *config.Config) []string {
	var reasons []string

	curNs, nextNs := cur.NamespaceNames(), next.NamespaceNames()
	same := len(curNs) == len(nextNs)
	for i := 0; same && i < len(curNs); i++ {
		same = curNs[i] == nextNs[i]
	}
	if !same {
		reasons = append(reasons, "Namespace list changed")
	}
	if cur.General.MaxMessageSize != next.General.MaxMessageSize {
		reasons = append(reasons, "max_message_size changed")
	}
	if cur.General.APIBindAddress != next.General.APIBindAddress {
		reasons = append(reasons, "api_bind_address changed")
	}
	return reasons
}
