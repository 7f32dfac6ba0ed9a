package dashboard

import (
	"fmt"
	"sort"
	"strings"
)

// NetworkType is the product family a dashboard network manages.
type NetworkType string

const (
	NetworkWired          NetworkType = "wired"
	NetworkSwitch         NetworkType = "switch"
	NetworkWireless       NetworkType = "wireless"
	NetworkCamera         NetworkType = "camera"
	NetworkSystemsManager NetworkType = "systems_manager"
	NetworkPhone          NetworkType = "phone"
)

// AllNetworkTypes lists every network type, used when no filter is given.
var AllNetworkTypes = []NetworkType{
	NetworkWired,
	NetworkSwitch,
	NetworkWireless,
	NetworkCamera,
	NetworkSystemsManager,
	NetworkPhone,
}

// ParseNetworkType accepts the dashboard names plus a few common aliases.
func ParseNetworkType(s string) (NetworkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wired", "appliance", "mx":
		return NetworkWired, nil
	case "switch", "ms":
		return NetworkSwitch, nil
	case "wireless", "mr":
		return NetworkWireless, nil
	case "camera", "mv":
		return NetworkCamera, nil
	case "systems_manager", "systems-manager", "device-management", "sm":
		return NetworkSystemsManager, nil
	case "phone", "mc":
		return NetworkPhone, nil
	}
	return "", fmt.Errorf("unknown network type %q", s)
}

// applianceSuffix is appended by the dashboard to some combined networks.
const applianceSuffix = " - appliance"

// Network is a manageable site within an organization.
type Network struct {
	ID         int64
	EID        string
	Name       string
	Type       NetworkType
	IsTemplate bool
}

// DisplayName is the name shown in listings.
func (n Network) DisplayName() string {
	return strings.ReplaceAll(n.Name, applianceSuffix, "")
}

// selectable reports whether the network may become the active network.
func (n Network) selectable() bool {
	return !n.IsTemplate
}

func (n Network) matchesType(types []NetworkType) bool {
	if len(types) == 0 {
		types = AllNetworkTypes
	}
	for _, t := range types {
		if n.Type == t {
			return true
		}
	}
	return false
}

// FetchState tells whether an organization's network inventory was loaded.
type FetchState int

const (
	NotFetched FetchState = iota
	Fetched
)

// String returns a human-readable representation of the fetch state.
func (f FetchState) String() string {
	switch f {
	case NotFetched:
		return "NotFetched"
	case Fetched:
		return "Fetched"
	default:
		return "Unknown"
	}
}

// Organization is a tenant account. Its metadata never changes once it is
// in a catalog; only the network inventory moves from NotFetched to Fetched.
type Organization struct {
	ID      int64
	Name    string
	EID     string
	ShardID int

	state    FetchState
	networks map[int64]Network
}

// FetchState reports whether the inventory has been loaded.
func (o Organization) FetchState() FetchState {
	return o.state
}

// Networks returns the inventory in ascending id order, templates included.
func (o Organization) Networks() []Network {
	ids := make([]int64, 0, len(o.networks))
	for id := range o.networks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	networks := make([]Network, 0, len(ids))
	for _, id := range ids {
		networks = append(networks, o.networks[id])
	}
	return networks
}

// Network looks up a network of this organization by id.
func (o Organization) Network(id int64) (Network, bool) {
	n, ok := o.networks[id]
	return n, ok
}

// firstSelectable returns the lowest-id non-template network.
func (o Organization) firstSelectable() (Network, bool) {
	for _, n := range o.Networks() {
		if n.selectable() {
			return n, true
		}
	}
	return Network{}, false
}

// withInventory returns a copy of o carrying a fetched inventory.
func (o Organization) withInventory(networks map[int64]Network) Organization {
	if networks == nil {
		networks = map[int64]Network{}
	}
	return Organization{
		ID:       o.ID,
		Name:     o.Name,
		EID:      o.EID,
		ShardID:  o.ShardID,
		state:    Fetched,
		networks: networks,
	}
}

// metadataEqual reports whether both values describe the same tenant.
func (o Organization) metadataEqual(other Organization) bool {
	return o.ID == other.ID && o.Name == other.Name && o.EID == other.EID && o.ShardID == other.ShardID
}
