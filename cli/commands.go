package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/dashboard"
	"github.com/yllada/merlink/troubleshoot"
	"github.com/yllada/merlink/ui"
	"github.com/yllada/merlink/vpn"
)

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("%s takes no arguments, got %q", cmd.CommandPath(), args)}
	}
	return nil
}

func (a *App) orgsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "orgs",
		Short: "List the organizations the account administers",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd.Context(), func(s *dashboard.Session, _ credentials) error {
				active, _ := s.ActiveOrganization()
				orgs := s.Organizations()
				sort.SliceStable(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })

				w := tabwriter.NewWriter(a.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tACTIVE")
				for _, o := range orgs {
					mark := ""
					if o.ID == active.ID {
						mark = "*"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", o.ID, o.Name, mark)
				}
				return w.Flush()
			})
		},
	}
}

func (a *App) networksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the networks of an organization",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, func(s *dashboard.Session, _ credentials) error {
				if err := a.selectOrganization(ctx, s); err != nil {
					return err
				}
				org, _ := s.ActiveOrganization()
				types, _ := a.cfg.ParsedNetworkTypes()
				active, _ := s.ActiveNetwork()

				w := tabwriter.NewWriter(a.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "# %s\n", org.Name)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tACTIVE")
				for _, n := range matchingNetworks(org, types) {
					mark := ""
					if n.ID == active.ID {
						mark = "*"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.ID, n.DisplayName(), n.Type, mark)
				}
				return w.Flush()
			})
		},
	}
}

type manualFlags struct {
	name     string
	address  string
	psk      string
	username string
	password string
}

func (m manualFlags) set() bool {
	return m.address != "" || m.psk != ""
}

func (a *App) connectCommand() *cobra.Command {
	var manual manualFlags
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a network's client VPN",
		Long: `Connect logs in to the dashboard, selects the organization and network
given by --org and --network (or asks), and dials the network's client VPN.

With --address and --psk the dashboard is skipped and the given values are
dialed directly.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if manual.set() {
				p, err := a.manualParams(manual)
				if err != nil {
					return err
				}
				return a.dial(ctx, p)
			}

			var params vpn.Params
			err := a.withSession(ctx, func(s *dashboard.Session, creds credentials) error {
				p, err := a.dashboardParams(ctx, s, creds)
				params = p
				return err
			})
			if err != nil {
				return err
			}
			return a.dial(ctx, params)
		},
	}
	f := cmd.Flags()
	f.StringVar(&manual.name, "name", "", "Connection name (manual mode)")
	f.StringVar(&manual.address, "address", "", "VPN server address (manual mode)")
	f.StringVar(&manual.psk, "psk", "", "IPSEC pre-shared key (manual mode)")
	f.StringVar(&manual.username, "vpn-username", "", "VPN username (manual mode, default: --username)")
	f.StringVar(&manual.password, "password", "", "VPN password (manual mode)")
	return cmd
}

const defaultConnectionName = "Meraki Client VPN"

func (a *App) manualParams(m manualFlags) (vpn.Params, error) {
	p := vpn.Params{
		Name:     m.name,
		Address:  m.address,
		PSK:      m.psk,
		Username: m.username,
		Password: m.password,
	}
	if p.Name == "" {
		p.Name = defaultConnectionName
	}
	if p.Username == "" {
		p.Username = a.cfg.Username
	}
	if p.Password == "" {
		p.Password = a.cfg.Password
	}
	if p.Password == "" {
		pw, err := a.Prompter.Secret("VPN password")
		if err != nil {
			return p, err
		}
		p.Password = pw
	}
	common.Redact(p.Secrets()...)
	if err := p.Validate(); err != nil {
		return p, usageError{err}
	}
	return p, nil
}

// dashboardParams resolves the target network and turns its client VPN
// settings into connection parameters.
func (a *App) dashboardParams(ctx context.Context, s *dashboard.Session, creds credentials) (vpn.Params, error) {
	if err := a.selectOrganization(ctx, s); err != nil {
		return vpn.Params{}, err
	}
	if err := a.selectNetwork(ctx, s); err != nil {
		return vpn.Params{}, err
	}
	org, _ := s.ActiveOrganization()
	network, _ := s.ActiveNetwork()

	var settings dashboard.ClientVPNSettings
	err := a.spin("Reading client VPN settings...", func() error {
		var err error
		settings, err = s.ClientVPN(ctx)
		return err
	})
	if err != nil {
		return vpn.Params{}, err
	}
	if !settings.Enabled {
		return vpn.Params{}, fmt.Errorf("%w: %s / %s", common.ErrClientVPNDisabled, org.Name, network.DisplayName())
	}
	if settings.Address() == "" {
		return vpn.Params{}, fmt.Errorf("%w: no public address for %s", common.ErrCatalog, network.DisplayName())
	}

	return vpn.Params{
		Name:     fmt.Sprintf("%s - %s", org.Name, network.DisplayName()),
		Address:  settings.Address(),
		PSK:      settings.Secret,
		Username: creds.username,
		Password: creds.password,
	}, nil
}

func (a *App) manager() (*vpn.Manager, error) {
	agent, err := a.NewAgent(a.cfg.VPN)
	if err != nil {
		return nil, err
	}
	m := vpn.NewManager(agent, vpn.WithConnectTimeout(a.cfg.ConnectTimeout))
	m.SetOnStatusChange(func(c *vpn.Connection) {
		common.LogDebug("VPN %s: %s", c.Name, c.GetStatus())
	})
	return m, nil
}

func (a *App) dial(ctx context.Context, p vpn.Params) error {
	m, err := a.manager()
	if err != nil {
		return err
	}

	a.notifier.NotifyConnecting(p.Name)
	start := time.Now()
	var conn *vpn.Connection
	err = a.spin(fmt.Sprintf("Connecting to %s (%s)...", p.Name, p.Address), func() error {
		var err error
		conn, err = m.Connect(ctx, p)
		return err
	})
	if err != nil {
		a.notifier.NotifyError(p.Name, err.Error())
		if !errors.Is(err, common.ErrAlreadyConnected) {
			fmt.Fprintln(a.Stderr, "Run 'merlink troubleshoot' to diagnose the network.")
		}
		return err
	}

	a.notifier.NotifyConnected(conn.Name)
	color.New(color.FgGreen).Fprintf(a.Stdout, "✓ Connected to %s in %s\n", conn.Name, formatDuration(time.Since(start)))
	return nil
}

func (a *App) disconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Hang up the client VPN connection",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			if err := m.Disconnect(cmd.Context()); err != nil {
				if errors.Is(err, common.ErrNotConnected) {
					fmt.Fprintln(a.Stdout, "No active connections.")
					return nil
				}
				return fmt.Errorf("failed to disconnect: %w", err)
			}
			a.notifier.NotifyDisconnected(common.AppName)
			fmt.Fprintln(a.Stdout, "✓ Disconnected")
			return nil
		},
	}
}

func (a *App) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a client VPN connection is up",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			status, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.Stdout, "VPN: %s\n", ui.StatusBadge(status))
			return nil
		},
	}
}

func (a *App) troubleshootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "troubleshoot",
		Short: "Check why the client VPN of a network fails",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, func(s *dashboard.Session, _ credentials) error {
				if err := a.selectOrganization(ctx, s); err != nil {
					return err
				}
				if err := a.selectNetwork(ctx, s); err != nil {
					return err
				}

				var report troubleshoot.Report
				var readErr error
				_ = a.spin("Running checks...", func() error {
					report, readErr = troubleshoot.Run(ctx, s, a.Pinger)
					return nil
				})
				a.printReport(report)
				if readErr != nil {
					return readErr
				}
				if failed := report.Failed(); len(failed) > 0 {
					return fmt.Errorf("%d of %d checks did not pass", len(failed), len(report))
				}
				return nil
			})
		},
	}
}

func (a *App) printReport(report troubleshoot.Report) {
	marks := map[troubleshoot.State]string{
		troubleshoot.StatePass:    color.GreenString("✓"),
		troubleshoot.StateFail:    color.RedString("✗"),
		troubleshoot.StateUnknown: color.YellowString("?"),
	}
	w := tabwriter.NewWriter(a.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tCHECK\tDETAIL")
	for _, r := range report {
		fmt.Fprintf(w, "%s\t%s\t%s\n", marks[r.State], r.Check, r.Detail)
	}
	_ = w.Flush()
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
