package vpn

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yllada/merlink/common"
)

var scutilServiceName = regexp.MustCompile(`"([^"]+)"`)

// darwinAgent dials services configured in the Network preferences with
// scutil. The L2TP service itself must already exist.
type darwinAgent struct {
	runner Runner
	opts   Options
}

// selectScript makes the service part of the active network set, which
// scutil needs before it can dial it. This requires admin rights.
func selectScript(name string) string {
	shell := "/usr/sbin/scutil --nc select " + quoteShell(name)
	return "do shell script " + quoteAppleScript(shell) + " with administrator privileges"
}

// Connect selects the service and starts it with the given credentials.
func (a *darwinAgent) Connect(ctx context.Context, p Params) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	services, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	if _, ok := services[p.Name]; !ok {
		return 0, fmt.Errorf("%w: no L2TP service named %q in Network settings", common.ErrConnectionFailed, p.Name)
	}

	res, err := a.runner.Run(ctx, "/usr/bin/osascript", "-e", selectScript(p.Name))
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		common.LogError("osascript failed (%d): %s", res.ExitCode, strings.TrimSpace(string(res.Output)))
		return res.ExitCode, nil
	}

	res, err = a.runner.Run(ctx, "/usr/sbin/scutil", "--nc", "start", p.Name,
		"--user", p.Username, "--password", p.Password, "--secret", p.PSK)
	if err != nil {
		return 0, err
	}
	return res.ExitCode, nil
}

// services maps every configured service name to whether it is connected.
func (a *darwinAgent) services(ctx context.Context) (map[string]bool, error) {
	res, err := a.runner.Run(ctx, "/usr/sbin/scutil", "--nc", "list")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("scutil --nc list exited with %d", res.ExitCode)
	}

	services := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(res.Output))
	for scanner.Scan() {
		line := scanner.Text()
		m := scutilServiceName.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		services[m[1]] = strings.Contains(line, "(Connected)")
	}
	return services, nil
}

// IsConnected reports whether any configured service is connected.
func (a *darwinAgent) IsConnected(ctx context.Context) (bool, error) {
	services, err := a.services(ctx)
	if err != nil {
		return false, err
	}
	for _, connected := range services {
		if connected {
			return true, nil
		}
	}
	return false, nil
}

// Disconnect stops every connected service.
func (a *darwinAgent) Disconnect(ctx context.Context) error {
	services, err := a.services(ctx)
	if err != nil {
		return err
	}
	found := false
	for name, connected := range services {
		if !connected {
			continue
		}
		found = true
		res, err := a.runner.Run(ctx, "/usr/sbin/scutil", "--nc", "stop", name)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("scutil --nc stop %q exited with %d", name, res.ExitCode)
		}
	}
	if !found {
		return common.ErrNotConnected
	}
	return nil
}
