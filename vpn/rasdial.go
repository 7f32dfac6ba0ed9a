package vpn

import (
	"context"
	"fmt"
	"strings"

	"github.com/yllada/merlink/common"
)

// windowsAgent creates the connection with the VpnClient PowerShell module
// and dials it with rasdial.
type windowsAgent struct {
	runner Runner
	opts   Options
}

func psBool(b bool) string {
	if b {
		return "$true"
	}
	return "$false"
}

// addScript builds the PowerShell that creates the connection if it does
// not exist yet. Every interpolated value is quoted.
func (a *windowsAgent) addScript(p Params) string {
	name := quotePowerShell(p.Name)

	var b strings.Builder
	b.WriteString("$ErrorActionPreference = 'Stop'\n")
	fmt.Fprintf(&b, "if (-not (Get-VpnConnection -Name %s -ErrorAction SilentlyContinue)) {\n", name)
	fmt.Fprintf(&b, "  Add-VpnConnection -Name %s -ServerAddress %s -TunnelType L2tp -L2tpPsk %s",
		name, quotePowerShell(p.Address), quotePowerShell(p.PSK))
	b.WriteString(" -AuthenticationMethod Pap -EncryptionLevel Optional -Force")
	fmt.Fprintf(&b, " -RememberCredential:%s -UseWinlogonCredential:%s -SplitTunneling:%s",
		psBool(a.opts.RememberCredential), psBool(a.opts.UseWinlogon), psBool(a.opts.SplitTunnel))
	if a.opts.DNSSuffix != "" {
		fmt.Fprintf(&b, " -DnsSuffix %s", quotePowerShell(a.opts.DNSSuffix))
	}
	if a.opts.IdleDisconnect > 0 {
		fmt.Fprintf(&b, " -IdleDisconnectSeconds %d", int(a.opts.IdleDisconnect.Seconds()))
	}
	b.WriteString("\n")
	if a.opts.SplitTunnel {
		for _, r := range a.opts.routes() {
			fmt.Fprintf(&b, "  Add-VpnConnectionRoute -ConnectionName %s -DestinationPrefix %s\n",
				name, quotePowerShell(r))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Connect creates the connection if needed and dials it.
func (a *windowsAgent) Connect(ctx context.Context, p Params) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	res, err := a.runner.Run(ctx, "powershell", "-NoProfile", "-NonInteractive",
		"-ExecutionPolicy", "Bypass", "-Command", a.addScript(p))
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		common.LogError("Add-VpnConnection failed (%d): %s", res.ExitCode, strings.TrimSpace(string(res.Output)))
		return res.ExitCode, nil
	}

	res, err = a.runner.Run(ctx, "rasdial", p.Name, p.Username, p.Password)
	if err != nil {
		return 0, err
	}
	return res.ExitCode, nil
}

// connected parses rasdial's listing of dialed connections.
func (a *windowsAgent) connected(ctx context.Context) ([]string, error) {
	res, err := a.runner.Run(ctx, "rasdial")
	if err != nil {
		return nil, err
	}

	var names []string
	inList := false
	for _, line := range strings.Split(string(res.Output), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Connected to"):
			inList = true
		case line == "" || strings.HasPrefix(line, "Command completed") || strings.HasPrefix(line, "No connections"):
			inList = false
		case inList:
			names = append(names, line)
		}
	}
	return names, nil
}

// IsConnected reports whether rasdial lists any connection.
func (a *windowsAgent) IsConnected(ctx context.Context) (bool, error) {
	names, err := a.connected(ctx)
	return len(names) > 0, err
}

// Disconnect hangs up every dialed connection.
func (a *windowsAgent) Disconnect(ctx context.Context) error {
	names, err := a.connected(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return common.ErrNotConnected
	}
	for _, name := range names {
		res, err := a.runner.Run(ctx, "rasdial", name, "/disconnect")
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("rasdial %s /disconnect exited with %d", name, res.ExitCode)
		}
	}
	return nil
}
