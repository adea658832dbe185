package commands

import (
	"flag"
	"fmt"

	"github.com/maksimkurb/pbrsync/src/internal/networking"
)

func CreateInterfacesCommand() *InterfacesCommand {
	gc := &InterfacesCommand{
		fs: flag.NewFlagSet("interfaces", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.Namespace, "netns", "", "List interfaces of the named network namespace")
	gc.fs.BoolVar(&gc.All, "all", false, "Include loopback interfaces")

	return gc
}

type InterfacesCommand struct {
	fs  *flag.FlagSet
	ctx *AppContext

	Namespace string
	All       bool
}

func (g *InterfacesCommand) Name() string {
	return g.fs.Name()
}

func (g *InterfacesCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx
	return g.fs.Parse(args)
}

func (g *InterfacesCommand) Run() error {
	ns, err := networking.OpenNamespace(g.Namespace)
	if err != nil {
		return err
	}
	defer ns.Close()

	links, err := collectLinks(ns, g.All)
	if err != nil {
		return fmt.Errorf("failed to get interfaces: %v", err)
	}

	fmt.Print(formatLinks(links))
	return nil
}
