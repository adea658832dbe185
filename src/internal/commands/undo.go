package commands

import (
	"context"
	"flag"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/log"
)

func CreateUndoCommand() *UndoCommand {
	gc := &UndoCommand{
		fs: flag.NewFlagSet("undo", flag.ExitOnError),
	}
	return gc
}

type UndoCommand struct {
	fs  *flag.FlagSet
	ctx *AppContext
	cfg *config.Config
}

func (g *UndoCommand) Name() string {
	return g.fs.Name()
}

func (g *UndoCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		g.cfg = cfg
	}

	return nil
}

func (g *UndoCommand) Run() error {
	log.Infof("Removing all configured ip rules...")

	stack, err := openStack(g.cfg, nil, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	err = stack.runChannels(context.Background(), func(ctx context.Context) error {
		// Only rules found in the kernel are deleted
		stack.manager.Load(g.cfg)
		return stack.manager.Undo(ctx)
	})
	if err != nil {
		log.Errorf("Failed to undo routing configuration: %v", err)
		return err
	}

	log.Infof("Undo routing completed successfully")
	return nil
}
