// Package vpn dials L2TP/IPSEC tunnels with the operating system's own
// tooling.
//
// # Architecture
//
// The package is organized around three types:
//
//   - Params: the resolved name, gateway address, pre-shared key and user
//     credentials of one connection
//   - Agent: the platform implementation (NetworkManager on Linux, scutil on
//     macOS, the VpnClient module and rasdial on Windows)
//   - Manager: wraps an Agent, waits for the tunnel to come up and tracks
//     the resulting Connection status
//
// # Quoting
//
// Values interpolated into PowerShell or AppleScript/shell source are
// quoted for that interpreter; values passed as process arguments are not.
//
// # Thread Safety
//
// Manager and Connection are safe for concurrent use.
package vpn
