package vpn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yllada/merlink/common"
)

// linuxAgent drives NetworkManager's L2TP plugin. Profiles are created or
// updated with nmcli under pkexec and watched over D-Bus; one profile is
// kept per connection name.
type linuxAgent struct {
	runner Runner
	opts   Options
	bus    nmBus
	newID  func() string

	mu   sync.Mutex
	uuid string
}

func newLinuxAgent(runner Runner, opts Options, bus nmBus) *linuxAgent {
	return &linuxAgent{
		runner: runner,
		opts:   opts,
		bus:    bus,
		newID:  func() string { return uuid.New().String() },
	}
}

// settingArgs are the property/value pairs shared by add and modify. Every
// property is always set so a reused profile loses stale values.
func (a *linuxAgent) settingArgs(p Params) []string {
	data := strings.Join([]string{
		"gateway=" + quoteNMData(p.Address),
		"ipsec-enabled=yes",
		"user=" + quoteNMData(p.Username),
		"password-flags=2",
		"ipsec-psk-flags=2",
	}, ", ")

	args := []string{
		"vpn.data", data,
		"ipv4.dns-search", a.opts.DNSSuffix,
	}
	if a.opts.SplitTunnel {
		args = append(args,
			"ipv4.never-default", "yes",
			"ipv4.routes", strings.Join(a.opts.routes(), ","),
		)
	} else {
		args = append(args, "ipv4.never-default", "no", "ipv4.routes", "")
	}
	return args
}

func (a *linuxAgent) addArgs(p Params, id string) []string {
	args := []string{
		"nmcli", "connection", "add",
		"type", "vpn",
		"con-name", p.Name,
		"connection.uuid", id,
		"vpn-type", "l2tp",
	}
	return append(args, a.settingArgs(p)...)
}

func (a *linuxAgent) modifyArgs(p Params, id string) []string {
	args := []string{"nmcli", "connection", "modify", "uuid", id}
	return append(args, a.settingArgs(p)...)
}

// secretsFile is the nmcli passwd-file content carrying the PSK and the
// user password. Secrets are flagged not-saved and supplied on every up.
func secretsFile(p Params) []byte {
	return []byte("vpn.secrets.password:" + p.Password + "\n" +
		"vpn.secrets.ipsec-psk:" + p.PSK + "\n")
}

// findProfile returns the UUID of an existing VPN profile called name.
func (a *linuxAgent) findProfile(ctx context.Context, name string) (string, error) {
	res, err := a.runner.Run(ctx, "nmcli", "--terse", "--fields", "NAME,UUID,TYPE", "connection", "show")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("nmcli connection show exited with %d", res.ExitCode)
	}
	for _, line := range strings.Split(string(res.Output), "\n") {
		n, id, typ, ok := parseTerseProfile(line)
		if ok && typ == "vpn" && n == name {
			return id, nil
		}
	}
	return "", nil
}

// parseTerseProfile splits a NAME:UUID:TYPE line of nmcli --terse output.
// Colons and backslashes inside the name are backslash-escaped.
func parseTerseProfile(line string) (name, id, typ string, ok bool) {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	if len(fields) != 3 {
		return "", "", "", false
	}
	return fields[0], fields[1], strings.TrimSpace(fields[2]), true
}

// Connect creates the NetworkManager profile, or updates the one already
// named p.Name, and brings it up with the secrets fed through stdin.
func (a *linuxAgent) Connect(ctx context.Context, p Params) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	input, ok := a.runner.(InputRunner)
	if !ok {
		return 0, errors.New("runner cannot pass secrets on stdin")
	}

	id, err := a.findProfile(ctx, p.Name)
	if err != nil {
		common.LogDebug("Could not list NetworkManager profiles: %v", err)
	}
	var args []string
	if id == "" {
		id = a.newID()
		args = a.addArgs(p, id)
		common.LogInfo("Creating NetworkManager connection %q (%s)", p.Name, id)
	} else {
		args = a.modifyArgs(p, id)
		common.LogInfo("Updating NetworkManager connection %q (%s)", p.Name, id)
	}

	res, err := a.runner.Run(ctx, "pkexec", args...)
	if err != nil {
		return 0, fmt.Errorf("running nmcli: %w", err)
	}
	if res.ExitCode != 0 {
		common.LogError("nmcli connection %s failed (%d): %s", args[2], res.ExitCode, strings.TrimSpace(string(res.Output)))
		return res.ExitCode, nil
	}

	a.mu.Lock()
	a.uuid = id
	a.mu.Unlock()

	res, err = input.RunInput(ctx, secretsFile(p), "nmcli", "connection", "up", "uuid", id, "passwd-file", "/dev/stdin")
	if err != nil {
		return 0, fmt.Errorf("running nmcli: %w", err)
	}
	if res.ExitCode != 0 {
		common.LogError("nmcli connection up failed (%d): %s", res.ExitCode, strings.TrimSpace(string(res.Output)))
	}
	return res.ExitCode, nil
}

// IsConnected asks NetworkManager for an activated VPN connection, falling
// back to nmcli when the system bus is unavailable.
func (a *linuxAgent) IsConnected(ctx context.Context) (bool, error) {
	active, err := a.bus.ActiveConnections(ctx)
	if err == nil {
		for _, c := range active {
			if c.VPN && c.State == nmStateActivated {
				return true, nil
			}
		}
		return false, nil
	}
	common.LogDebug("NetworkManager D-Bus unavailable, using nmcli: %v", err)

	res, err := a.runner.Run(ctx, "nmcli", "--terse", "--fields", "TYPE", "connection", "show", "--active")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(res.Output), "\n") {
		if strings.TrimSpace(line) == "vpn" {
			return true, nil
		}
	}
	return false, nil
}

// Disconnect deactivates every active VPN connection.
func (a *linuxAgent) Disconnect(ctx context.Context) error {
	active, err := a.bus.ActiveConnections(ctx)
	if err != nil {
		common.LogDebug("NetworkManager D-Bus unavailable, using nmcli: %v", err)
		return a.disconnectWithNmcli(ctx)
	}

	found := false
	for _, c := range active {
		if !c.VPN || (c.State != nmStateActivated && c.State != nmStateActivating) {
			continue
		}
		found = true
		common.LogInfo("Deactivating %s (%s)", c.ID, c.UUID)
		if err := a.bus.Deactivate(ctx, c.Path); err != nil {
			return fmt.Errorf("deactivating %s: %w", c.ID, err)
		}
	}
	if !found {
		return common.ErrNotConnected
	}
	return nil
}

func (a *linuxAgent) disconnectWithNmcli(ctx context.Context) error {
	a.mu.Lock()
	id := a.uuid
	a.mu.Unlock()
	if id == "" {
		return common.ErrNotConnected
	}

	res, err := a.runner.Run(ctx, "nmcli", "connection", "down", "uuid", id)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("nmcli connection down exited with %d: %s", res.ExitCode, strings.TrimSpace(string(res.Output)))
	}
	return nil
}
