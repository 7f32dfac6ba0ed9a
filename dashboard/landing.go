package dashboard

import (
	"strings"

	"github.com/yllada/merlink/common"
)

// landing is the post-login state the dashboard redirected to.
type landing interface {
	isLanding()
}

// chooserLanding is the page shown to admins of two or more organizations
// before any org-scoped page may be visited.
type chooserLanding struct {
	page *Page
	// links are the per-organization links in document order.
	links []string
}

// orgLanding is an org-scoped page; the catalog can be scraped directly.
type orgLanding struct {
	page *Page
}

func (chooserLanding) isLanding() {}
func (orgLanding) isLanding()     {}

func classifyLanding(p *Page) landing {
	if strings.Contains(p.URL, common.OrgListPath) {
		return chooserLanding{page: p, links: orgChooseLinks(p.Links)}
	}
	return orgLanding{page: p}
}
