package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/pbrmap"
)

func CreateShowCommand() *ShowCommand {
	gc := &ShowCommand{
		fs: flag.NewFlagSet("show", flag.ExitOnError),
	}

	gc.fs.BoolVar(&gc.JSON, "json", false, "Print rules as JSON")
	gc.fs.StringVar(&gc.Map, "map", "", "Only show the specified pbr_map")
	gc.fs.StringVar(&gc.Interface, "interface", "", "Only show rules bound to the specified interface")

	return gc
}

type ShowCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config

	JSON      bool
	Map       string
	Interface string
}

func (g *ShowCommand) Name() string {
	return g.fs.Name()
}

func (g *ShowCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	// Keep stdout a single JSON document
	if g.JSON {
		log.SetForceStdErr(true)
	}

	if g.Map != "" && g.Interface != "" {
		return fmt.Errorf("-map and -interface can not be used together")
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		g.cfg = cfg
	}

	if g.Map != "" && g.cfg.PBRMap(g.Map) == nil {
		return fmt.Errorf("pbr_map %s is not configured", g.Map)
	}

	return nil
}

func (g *ShowCommand) Run() error {
	stack, err := openStack(g.cfg, nil, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	stack.manager.Load(g.cfg)

	return g.print(stack.manager)
}

func (g *ShowCommand) print(m *pbrmap.Manager) error {
	var data interface{}
	var text string

	switch {
	case g.Map != "":
		view, _ := m.Map(g.Map)
		data, text = view, formatMaps([]pbrmap.MapView{view})
	case g.Interface != "":
		views := m.Interface(g.Interface)
		if len(views) == 0 {
			return fmt.Errorf("interface %s has no pbr-policy", g.Interface)
		}
		data, text = views, formatInterfaces(views)
	default:
		data, text = m.Rules(), formatMaps(m.Maps())+formatInterfaces(m.Interfaces())
	}

	if !g.JSON {
		fmt.Print(text)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
