// Package cli provides the merlink command-line interface: dashboard login,
// organization and network selection, and the client VPN connection built
// from the selected network's settings.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yllada/merlink/browser"
	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/config"
	"github.com/yllada/merlink/dashboard"
	"github.com/yllada/merlink/keyring"
	"github.com/yllada/merlink/troubleshoot"
	"github.com/yllada/merlink/ui"
	"github.com/yllada/merlink/vpn"
)

// App holds the collaborators of every command. Fields are exported so
// tests and embedders can replace them before Execute.
type App struct {
	Version   string
	Commit    string
	BuildTime string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// EnvFile is an optional dotenv file with MERLINK_* overrides.
	EnvFile string

	LoadConfig  func(path string) (*config.Config, error)
	NewSource   func(cfg *config.Config) (dashboard.PageSource, error)
	NewAgent    func(opts vpn.Options) (vpn.Agent, error)
	Credentials common.CredentialStore
	Prompter    Prompter
	Pinger      troubleshoot.Pinger
	Runner      vpn.Runner
	Interactive func() bool
	Pick        func(title string, items []string) (string, error)

	cfg      *config.Config
	notifier *ui.Notifier
	flags    globalFlags
}

type globalFlags struct {
	verbose    bool
	configPath string
	username   string
	org        string
	network    string
	types      []string
}

// New returns an App wired to the real system.
func New(version, commit, buildTime string) *App {
	return &App{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		EnvFile:   common.EnvFileName,
		LoadConfig: func(path string) (*config.Config, error) {
			if path == "" {
				return config.Load()
			}
			return config.LoadFrom(path)
		},
		NewSource: func(cfg *config.Config) (dashboard.PageSource, error) {
			b, err := browser.New(
				browser.WithTimeout(cfg.RequestTimeout),
				browser.WithLogger(common.GetLogger()),
			)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		NewAgent:    vpn.DefaultAgent,
		Credentials: keyring.New(),
		Prompter:    newTermPrompter(os.Stdin, os.Stderr),
		Pinger:      troubleshoot.NewCommandPinger(),
		Runner:      vpn.ExecRunner{},
		Interactive: ui.IsInteractive,
		Pick: func(title string, items []string) (string, error) {
			return ui.Pick(title, items)
		},
	}
}

// Command builds the command tree.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "merlink",
		Short: "Connect to Meraki client VPN from the dashboard",
		Long: `MerLink logs in to the Meraki dashboard, resolves an organization and
network, reads the network's client VPN settings and dials an L2TP/IPSEC
connection with the operating system's own VPN tooling.`,
		Version:           a.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetVersionTemplate(fmt.Sprintf(`%s %s
  Commit:  %s
  Built:   %s
`, common.AppName, a.Version, a.Commit, a.BuildTime))
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "Config file (default: ~/.config/merlink/config.yaml)")
	pf.StringVarP(&a.flags.username, "username", "u", "", "Dashboard login email")
	pf.StringVarP(&a.flags.org, "org", "o", "", "Organization id or name")
	pf.StringVarP(&a.flags.network, "network", "n", "", "Network id or name")
	pf.StringSliceVarP(&a.flags.types, "type", "t", nil, "Network types to match (wired, switch, wireless, camera, systems_manager, phone)")

	root.AddCommand(
		a.orgsCommand(),
		a.networksCommand(),
		a.connectCommand(),
		a.disconnectCommand(),
		a.statusCommand(),
		a.troubleshootCommand(),
	)
	return root
}

// setup loads the configuration and merges the global flags into it.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.LoadConfig(a.flags.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(a.EnvFile); err != nil {
		return err
	}

	level := common.ParseLogLevel(cfg.LogLevel)
	if a.flags.verbose {
		level = common.LevelDebug
		common.GetLogger().SetConsole(a.Stderr)
	}
	common.GetLogger().SetLevel(level)

	if a.flags.username != "" {
		cfg.Username = a.flags.username
	}
	if a.flags.org != "" {
		cfg.Organization = a.flags.org
	}
	if a.flags.network != "" {
		cfg.Network = a.flags.network
	}
	if len(a.flags.types) > 0 {
		cfg.NetworkTypes = a.flags.types
	}
	if _, err := cfg.ParsedNetworkTypes(); err != nil {
		return usageError{err}
	}

	a.cfg = cfg
	if a.notifier == nil {
		a.notifier = ui.NewNotifier(a.Runner, cfg.ShowNotifications)
	}
	common.LogDebug("Running %s %s", cmd.Name(), a.Version)
	return nil
}

// Execute runs the command line and returns the process exit code.
func (a *App) Execute(ctx context.Context, args []string) int {
	root := a.Command()
	root.SetArgs(args)
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	red := color.New(color.FgRed, color.Bold)
	red.Fprint(a.Stderr, "Error: ")
	fmt.Fprintln(a.Stderr, err)
	var uerr usageError
	if errors.As(err, &uerr) || isCobraUsage(err) {
		fmt.Fprintf(a.Stderr, "Run '%s --help' for usage.\n", root.CommandPath())
	}
	common.LogDebug("Command failed: %v", err)
	return ExitCode(err)
}
