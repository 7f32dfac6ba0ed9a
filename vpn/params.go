package vpn

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Params are the resolved values needed to build and dial an L2TP/IPSEC
// connection.
type Params struct {
	// Name is the OS-level connection name.
	Name string
	// Address is the appliance's DDNS hostname or public IP.
	Address  string
	PSK      string
	Username string
	Password string
}

// Validate checks that every field is present. Empty values are rejected
// because PowerShell and nmcli both treat them as missing arguments.
func (p Params) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", p.Name},
		{"address", p.Address},
		{"psk", p.PSK},
		{"username", p.Username},
		{"password", p.Password},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing VPN parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Secrets returns the values that must never reach a log line.
func (p Params) Secrets() []string {
	return []string{p.PSK, p.Password}
}

// Options are the platform connection settings that do not come from the
// dashboard.
type Options struct {
	// DNSSuffix is the connection-specific DNS search domain.
	DNSSuffix string `yaml:"dns_suffix"`
	// IdleDisconnect hangs up after this much inactivity (Windows only).
	IdleDisconnect time.Duration `yaml:"idle_disconnect"`
	// SplitTunnel keeps the default route off the tunnel.
	SplitTunnel bool `yaml:"split_tunnel"`
	// SplitRoutes are sent through the tunnel when SplitTunnel is on.
	SplitRoutes []string `yaml:"split_routes,omitempty"`
	// RememberCredential caches the credential in the OS (Windows only).
	RememberCredential bool `yaml:"remember_credential"`
	// UseWinlogon uses the Windows logon credential.
	UseWinlogon bool `yaml:"use_winlogon"`
}

// Validate checks the split tunnel routes.
func (o Options) Validate() error {
	var errs []error
	for _, r := range o.SplitRoutes {
		if normalizeNetworkRoute(r) == "" {
			errs = append(errs, fmt.Errorf("invalid split tunnel route %q", r))
		}
	}
	if o.IdleDisconnect < 0 {
		errs = append(errs, errors.New("idle_disconnect must not be negative"))
	}
	return errors.Join(errs...)
}

// routes returns the normalized split tunnel routes.
func (o Options) routes() []string {
	var routes []string
	for _, r := range o.SplitRoutes {
		if n := normalizeNetworkRoute(r); n != "" {
			routes = append(routes, n)
		}
	}
	return routes
}

// normalizeNetworkRoute normalizes a network route.
// Converts "192.168.1.1/24" to "192.168.1.0/24" (correct network address)
// Converts "10.0.0.5" to "10.0.0.5/32" (individual host)
func normalizeNetworkRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return ""
	}

	if strings.Contains(route, "/") {
		_, ipNet, err := net.ParseCIDR(route)
		if err != nil {
			return ""
		}
		ones, _ := ipNet.Mask.Size()
		return fmt.Sprintf("%s/%d", ipNet.IP.String(), ones)
	}

	if ip := net.ParseIP(route); ip != nil && ip.To4() != nil {
		return route + "/32"
	}
	return ""
}

// Quoting for the interpreters that parse connection scripts.

// quotePowerShell returns s as a double-quoted PowerShell string.
func quotePowerShell(s string) string {
	r := strings.NewReplacer("`", "``", "$", "`$", `"`, "`\"")
	return `"` + r.Replace(s) + `"`
}

// quoteShell returns s as a double-quoted POSIX shell word.
func quoteShell(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "$", `\$`, "`", "\\`", `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// quoteAppleScript returns s as an AppleScript string literal.
func quoteAppleScript(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// quoteNMData escapes a value for nmcli's comma-separated vpn.data list.
func quoteNMData(s string) string {
	r := strings.NewReplacer(`\`, `\\`, ",", `\,`)
	return r.Replace(s)
}
