package commands

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/log"
)

func CreateApplyCommand() *ApplyCommand {
	gc := &ApplyCommand{
		fs: flag.NewFlagSet("apply", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.OnlyInterface, "only-interface", "", "Only apply rules bound to the specified interface")
	gc.fs.BoolVar(&gc.FailIfNothingToApply, "fail-if-nothing-to-apply", false, "If there is no rule to apply, exit with error code (5)")

	return gc
}

type ApplyCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config

	OnlyInterface        string
	FailIfNothingToApply bool
}

func (g *ApplyCommand) Name() string {
	return g.fs.Name()
}

func (g *ApplyCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		g.cfg = cfg
	}

	if g.OnlyInterface != "" {
		g.cfg.Policies = onlyInterface(g.cfg.Policies, g.OnlyInterface)
	}

	return nil
}

func (g *ApplyCommand) Run() error {
	if len(g.cfg.Policies) == 0 {
		if g.FailIfNothingToApply {
			log.Warnf("Nothing to apply, exiting with exit_code=5")
			os.Exit(5)
		}
		log.Warnf("Nothing to apply")
		return nil
	}

	stack, err := openStack(g.cfg, nil, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	return stack.runChannels(context.Background(), func(ctx context.Context) error {
		if err := stack.manager.Apply(ctx, g.cfg); err != nil {
			return fmt.Errorf("failed to apply pbr rules: %v", err)
		}
		return nil
	})
}

// onlyInterface keeps the policies that bind iface in any namespace.
func onlyInterface(policies []*config.PBRPolicyConfig, iface string) []*config.PBRPolicyConfig {
	var out []*config.PBRPolicyConfig
	for _, p := range policies {
		if p.Interface == iface {
			out = append(out, p)
		}
	}
	return out
}
