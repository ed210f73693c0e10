// Command volmount is the companion CLI for the login-time volume
// mount core: it drives mount.Controller directly from the command
// line, the same job a PAM session hook does through authglue, for
// manual invocation, scripting, and diagnostics. Wired the way
// lxd-migrate/main.go and lxd-user/main.go assemble a cobra command
// tree: one root command, global persistent flags, one subcommand per
// operation.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pam-mount/volmount/config"
	"github.com/pam-mount/volmount/mount"
	"github.com/pam-mount/volmount/volumelog"
)

// version has no release process of its own yet; bump by hand
// alongside tagged releases.
const version = "0.1.0"

type cmdGlobal struct {
	flagConfig string
	flagDebug  bool
}

// controller loads the operator configuration and builds a ready-to-
// use mount.Controller, the shared setup every subcommand needs.
func (g *cmdGlobal) controller() (*mount.Controller, error) {
	cfg, err := config.Load(g.flagConfig)
	if err != nil {
		return nil, err
	}
	if g.flagDebug {
		cfg.Debug = true
	}

	log, err := volumelog.New("volmount", cfg.Debug)
	if err != nil {
		return nil, err
	}

	return mount.New(cfg, log), nil
}

func main() {
	global := &cmdGlobal{}

	app := &cobra.Command{}
	app.Use = "volmount"
	app.Short = "Login-time volume mount orchestrator"
	app.Long = `Description:
  volmount mounts and unmounts per-user network shares and encrypted
  containers at login time. It implements the same do_mount/do_unmount
  sequence a PAM session module would drive through the authglue
  package, exposed here as a standalone command for manual use and
  scripting.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}
	app.Version = version
	app.SetVersionTemplate("{{.Version}}\n")

	app.PersistentFlags().StringVar(&global.flagConfig, "config", "/etc/volmount.yaml", "Path to the operator configuration file")
	app.PersistentFlags().BoolVar(&global.flagDebug, "debug", false, "Enable debug logging regardless of the config file")

	mountCmd := cmdMount{global: global}
	app.AddCommand(mountCmd.command())

	unmountCmd := cmdUnmount{global: global}
	app.AddCommand(unmountCmd.command())

	statusCmd := cmdStatus{global: global}
	app.AddCommand(statusCmd.command())

	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
