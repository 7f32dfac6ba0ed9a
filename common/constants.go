package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "MerLink"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "merlink"
	// KeyringService is the identifier used in the system keyring.
	KeyringService = "merlink"
)

// File names used by the application.
const (
	ConfigFileName      = "config.yaml"
	CredentialsFileName = ".credentials"
	LogFileName         = "merlink.log"
	EnvFileName         = ".env"
)

// Dashboard endpoints. Shard hosts are formatted with the org's shard id.
const (
	DefaultAccountURL     = "https://account.meraki.com"
	DefaultShardURLFormat = "https://n%d.meraki.com"

	LoginPath     = "/login/dashboard_login"
	LogoutPath    = "/login/logout"
	OrgListPath   = "/login/org_list"
	OrgChoosePath = "/login/org_choose"
)

// Default timeouts.
const (
	// RequestTimeout bounds a single dashboard page load.
	RequestTimeout = 30 * time.Second
	// ConnectionTimeout is the maximum time to wait for a tunnel to come up.
	ConnectionTimeout = 60 * time.Second
	// PingTimeout bounds the reachability check in troubleshooting.
	PingTimeout = 10 * time.Second
)

// UserAgent is sent with every dashboard request.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) merlink"
