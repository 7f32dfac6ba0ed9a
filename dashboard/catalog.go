package dashboard

import (
	"fmt"
	"sort"

	"github.com/yllada/merlink/common"
)

// catalog is the in-memory inventory of administered organizations.
// Iteration is always in ascending organization id.
type catalog struct {
	orgs map[int64]Organization
	ids  []int64
}

func newCatalog(orgs []Organization) (*catalog, error) {
	c := &catalog{orgs: make(map[int64]Organization, len(orgs))}
	for _, o := range orgs {
		if _, dup := c.orgs[o.ID]; dup {
			return nil, fmt.Errorf("%w: organization %d listed twice", common.ErrCatalog, o.ID)
		}
		c.orgs[o.ID] = o
		c.ids = append(c.ids, o.ID)
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })
	return c, nil
}

func (c *catalog) len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

func (c *catalog) get(id int64) (Organization, bool) {
	if c == nil {
		return Organization{}, false
	}
	o, ok := c.orgs[id]
	return o, ok
}

// list returns the organizations in ascending id order.
func (c *catalog) list() []Organization {
	if c == nil {
		return nil
	}
	orgs := make([]Organization, 0, len(c.ids))
	for _, id := range c.ids {
		orgs = append(orgs, c.orgs[id])
	}
	return orgs
}

// fetched returns the organizations whose inventory is loaded.
func (c *catalog) fetched() []Organization {
	var orgs []Organization
	for _, o := range c.list() {
		if o.state == Fetched {
			orgs = append(orgs, o)
		}
	}
	return orgs
}

// store replaces an existing entry with its fetched counterpart.
func (c *catalog) store(o Organization) error {
	existing, ok := c.orgs[o.ID]
	if !ok {
		return fmt.Errorf("%w: organization %d", common.ErrUnknownOrganization, o.ID)
	}
	if !existing.metadataEqual(o) {
		return fmt.Errorf("%w: organization %d metadata changed", common.ErrCatalog, o.ID)
	}
	if existing.state == Fetched {
		return fmt.Errorf("%w: organization %d inventory already loaded", common.ErrCatalog, o.ID)
	}
	c.orgs[o.ID] = o
	return nil
}
