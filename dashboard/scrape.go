package dashboard

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/yllada/merlink/common"
)

var (
	administeredOrgsPattern = regexp.MustCompile(`(?m)Mkiconf\.administered_orgs\s*=\s*(\{.*\})\s*;?\s*$`)
	networkAdminOnlyPattern = regexp.MustCompile(`Mkiconf\.network_admin_only\s*=\s*true`)
	orgChooseLinkPattern    = regexp.MustCompile(regexp.QuoteMeta(common.OrgChoosePath) + `\?eid=.{6}`)
	nonSlugChars            = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

type rawNetwork struct {
	ID         int64  `json:"id"`
	Name       string `json:"n"`
	EID        string `json:"eid"`
	Type       string `json:"network_type"`
	IsTemplate bool   `json:"is_config_template"`
}

type rawOrg struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	EID     string `json:"eid"`
	ShardID int    `json:"shard_id"`
	// NodeGroups is nil when the page carries no inventory for this org.
	NodeGroups map[string]rawNetwork `json:"node_groups"`
}

// parseAdministeredOrgs reads the organization blob embedded in every
// org-scoped page. Only the organization the page belongs to carries a
// node_groups object; every other entry comes back NotFetched.
func parseAdministeredOrgs(body string) ([]Organization, error) {
	m := administeredOrgsPattern.FindStringSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("%w: administered organizations not found on page", common.ErrCatalog)
	}

	var raw map[string]rawOrg
	if err := json.Unmarshal([]byte(m[1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding administered organizations: %v", common.ErrCatalog, err)
	}

	orgs := make([]Organization, 0, len(raw))
	for key, r := range raw {
		if r.ID == 0 {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: organization entry %q has no id", common.ErrCatalog, key)
			}
			r.ID = id
		}
		if r.EID == "" {
			return nil, fmt.Errorf("%w: organization %d has no eid", common.ErrCatalog, r.ID)
		}

		org := Organization{ID: r.ID, Name: r.Name, EID: r.EID, ShardID: r.ShardID}
		if r.NodeGroups != nil {
			networks := make(map[int64]Network, len(r.NodeGroups))
			for eid, rn := range r.NodeGroups {
				if rn.EID == "" {
					rn.EID = eid
				}
				if rn.ID == 0 {
					return nil, fmt.Errorf("%w: network %q of organization %d has no id", common.ErrCatalog, eid, r.ID)
				}
				networks[rn.ID] = Network{
					ID:         rn.ID,
					EID:        rn.EID,
					Name:       rn.Name,
					Type:       NetworkType(rn.Type),
					IsTemplate: rn.IsTemplate,
				}
			}
			org = org.withInventory(networks)
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

// isNetworkAdminOnly reports whether the page marks the user as having
// network access without organization membership.
func isNetworkAdminOnly(body string) bool {
	return networkAdminOnlyPattern.MatchString(body)
}

// networkEIDFromURL extracts the network eid from paths shaped like
// /<name>/n/<eid>/manage/...
func networkEIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "n" && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	return ""
}

// orgChooseLinks returns the chooser links in document order.
func orgChooseLinks(links []string) []string {
	var matched []string
	for _, href := range links {
		if orgChooseLinkPattern.MatchString(href) {
			matched = append(matched, href)
		}
	}
	return matched
}

// slugify turns a network name into the path component the dashboard uses.
func slugify(name string) string {
	slug := strings.Trim(nonSlugChars.ReplaceAllString(name, "-"), "-")
	if slug == "" {
		return "network"
	}
	return slug
}

// jsonStringField returns the decoded value of the first "key":"value"
// pair in body.
func jsonStringField(body, key string) (string, bool) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*("(?:[^"\\]|\\.)*")`)
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	var v string
	if err := json.Unmarshal([]byte(m[1]), &v); err != nil {
		return "", false
	}
	return v, true
}

// jsonBoolField returns the first "key":true|false pair in body.
func jsonBoolField(body, key string) (bool, bool) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*(true|false)`)
	m := re.FindStringSubmatch(body)
	if m == nil {
		return false, false
	}
	return m[1] == "true", true
}
