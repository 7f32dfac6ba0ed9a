package dashboard

import "context"

// Page is a loaded dashboard page.
type Page struct {
	// URL is the final location after redirects.
	URL string
	// Body is the raw page content.
	Body string
	// Links holds every anchor href in document order.
	Links []string
}

// Form describes a submission of the current page's first form.
// Fields not listed keep the values the page pre-filled.
type Form struct {
	Fields map[string]string
	// Submit is the name of the submit button to press.
	Submit string
}

// PageSource loads pages and submits forms for a single browsing context.
// Implementations own cookies, redirects and timeouts; a returned error
// always denotes a transport-level failure.
type PageSource interface {
	// Open navigates to rawURL and returns the resulting page.
	Open(ctx context.Context, rawURL string) (*Page, error)
	// Submit fills and submits the first form of the current page.
	Submit(ctx context.Context, form Form) (*Page, error)
}
