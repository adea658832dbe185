package commands

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/kernel"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/pbrmap"
)

func CreateSelfCheckCommand() *SelfCheckCommand {
	gc := &SelfCheckCommand{
		fs: flag.NewFlagSet("self-check", flag.ExitOnError),
	}
	return gc
}

type SelfCheckCommand struct {
	fs  *flag.FlagSet
	ctx *AppContext
	cfg *config.Config
}

func (g *SelfCheckCommand) Name() string {
	return g.fs.Name()
}

func (g *SelfCheckCommand) Init(args []string, ctx *AppContext) error {
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

func (g *SelfCheckCommand) Run() error {
	log.Infof("Running self-check...")
	log.Infof("---------------- Configuration START -----------------")

	if cfg, err := g.cfg.SerializeConfig(); err != nil {
		log.Errorf("Failed to serialize config: %v", err)
		return err
	} else {
		if err := binary.Write(os.Stdout, binary.LittleEndian, cfg.Bytes()); err != nil {
			log.Errorf("Failed to output config: %v", err)
			return err
		}
	}

	log.Infof("----------------- Configuration END ------------------")

	stack, err := openStack(g.cfg, nil, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	stack.manager.Load(g.cfg)

	if missing := checkMaps(stack.manager.Maps()); missing > 0 {
		log.Errorf("Self-check completed with failures: %d rule(s) missing", missing)
		return fmt.Errorf("self-check failed")
	}

	log.Infof("Self-check completed successfully")
	return nil
}

// checkMaps logs the kernel state of every rule and returns how many are missing.
func checkMaps(maps []pbrmap.MapView) int {
	missing := 0
	for _, m := range maps {
		log.Infof("----------------- pbr_map [%s] ------------------", m.Name)
		for _, r := range m.Rules {
			if r.Installed {
				log.Infof("[ip rule] seq %d on %s(%s): %s exists", r.Seq, r.Interface, kernel.DisplayName(r.Namespace), r.Command)
			} else {
				log.Errorf("[ip rule] seq %d on %s(%s): %s does NOT exist (missing)", r.Seq, r.Interface, kernel.DisplayName(r.Namespace), r.Command)
				missing++
			}
		}
		log.Infof("----------------- pbr_map [%s] END ------------------", m.Name)
	}
	return missing
}
