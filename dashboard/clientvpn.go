package dashboard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yllada/merlink/common"
)

const (
	clientVPNRoute       = "/configure/client_vpn_settings"
	applianceStatusRoute = "/nodes/new_wired_status"
)

var (
	applianceStatusPattern = regexp.MustCompile(`status#"?\s*:\s*"?(\d+)`)
	publicPortPattern      = regexp.MustCompile(`"public_port"\s*:\s*"?(\d+)"?`)
)

// Markers of the Meraki cloud authentication option in the settings form.
var merakiAuthMarkers = []string{
	`Meraki cloud</option></select>`,
	`<option value="meraki" selected="selected">`,
}

// ClientVPNSettings is the client VPN configuration of a network's
// security appliance.
type ClientVPNSettings struct {
	Enabled bool
	// Secret is the IPSEC pre-shared key.
	Secret   string
	Hostname string
	PublicIP string
	AuthType string
	// ForwardedPorts lists the public ports of the appliance's port
	// forwarding rules.
	ForwardedPorts []int
}

// Address returns the host clients should dial, preferring the dynamic DNS
// name over the public IP.
func (c ClientVPNSettings) Address() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	return c.PublicIP
}

// MerakiAuth reports whether users authenticate against the Meraki cloud.
func (c ClientVPNSettings) MerakiAuth() bool {
	return strings.EqualFold(c.AuthType, "meraki")
}

// Forwards reports whether port is forwarded to an inside host.
func (c ClientVPNSettings) Forwards(port int) bool {
	for _, p := range c.ForwardedPorts {
		if p == port {
			return true
		}
	}
	return false
}

func parseClientVPNSettings(body string) ClientVPNSettings {
	var c ClientVPNSettings
	c.Enabled, _ = jsonBoolField(body, "client_vpn_enabled")
	c.Secret, _ = jsonStringField(body, "client_vpn_secret")
	c.Hostname, _ = jsonStringField(body, "dynamic_dns_name")
	c.PublicIP, _ = jsonStringField(body, "wired_ip")
	c.AuthType, _ = jsonStringField(body, "client_vpn_auth_type")
	if c.AuthType == "" {
		for _, marker := range merakiAuthMarkers {
			if strings.Contains(body, marker) {
				c.AuthType = "meraki"
				break
			}
		}
	}
	for _, m := range publicPortPattern.FindAllStringSubmatch(body, -1) {
		if port, err := strconv.Atoi(m[1]); err == nil {
			c.ForwardedPorts = append(c.ForwardedPorts, port)
		}
	}
	return c
}

// ApplianceStatus is the dashboard's view of a network's security appliance.
type ApplianceStatus struct {
	// Known is false when the network has no appliance.
	Known bool
	// StatusCode is 0 when online; 2 means unreachable.
	StatusCode int
	// RequestIP is the public address the dashboard saw this client from.
	RequestIP string
}

// Online reports whether the appliance is checking in with the dashboard.
func (a ApplianceStatus) Online() bool {
	return a.Known && a.StatusCode == 0
}

func parseApplianceStatus(body string) ApplianceStatus {
	var a ApplianceStatus
	if m := applianceStatusPattern.FindStringSubmatch(body); m != nil {
		a.StatusCode, _ = strconv.Atoi(m[1])
		a.Known = true
	}
	a.RequestIP, _ = jsonStringField(body, "request_ip")
	return a
}

// ClientVPN reads the client VPN settings of the active network.
func (s *Session) ClientVPN(ctx context.Context) (ClientVPNSettings, error) {
	page, err := s.openNetworkRoute(ctx, clientVPNRoute)
	if err != nil {
		return ClientVPNSettings{}, err
	}
	settings := parseClientVPNSettings(page.Body)
	if settings.Secret != "" {
		common.Redact(settings.Secret)
	}
	s.log.Debug("Client VPN enabled=%t address=%s", settings.Enabled, settings.Address())
	return settings, nil
}

// ApplianceStatus reads the security appliance status of the active network.
func (s *Session) ApplianceStatus(ctx context.Context) (ApplianceStatus, error) {
	page, err := s.openNetworkRoute(ctx, applianceStatusRoute)
	if err != nil {
		return ApplianceStatus{}, err
	}
	return parseApplianceStatus(page.Body), nil
}

func (s *Session) openNetworkRoute(ctx context.Context, route string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthenticated(); err != nil {
		return nil, err
	}
	org, ok := s.catalog.get(s.activeOrgID)
	if !ok {
		return nil, common.ErrNoActiveNetwork
	}
	n, ok := s.activeNetwork()
	if !ok {
		return nil, common.ErrNoActiveNetwork
	}
	page, err := s.source.Open(ctx, s.endpoints.networkURL(org, n, route))
	if err != nil {
		return nil, common.JoinSentinel(common.ErrConnection, fmt.Errorf("%s: %w", route, err))
	}
	return page, nil
}
