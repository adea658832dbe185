// Package commands implements CLI command handlers for pbrsync.
//
// Each command implements the Runner interface:
//   - Init(): Parse arguments and validate configuration
//   - Run(): Execute the command
//   - Name(): Return command name for routing
//
// # Available Commands
//
//   - service: Run as a daemon. Installs the configured rules, watches the
//     kernel for rules deleted by someone else and serves the REST API.
//   - apply: Install the configured rules once
//   - undo: Remove the configured rules from the kernel
//   - show: Print the configured rules and their kernel state
//   - self-check: Compare the configured rules with the kernel rule table
//   - interfaces: List the links of a namespace
//
// # Example Usage
//
//	cmd := commands.CreateApplyCommand()
//	ctx := &commands.AppContext{
//	    ConfigPath: "/opt/etc/pbrsync/pbrsync.conf",
//	    Verbose:    true,
//	}
//	if err := cmd.Init(args, ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cmd.Run(); err != nil {
//	    log.Fatal(err)
//	}
package commands
