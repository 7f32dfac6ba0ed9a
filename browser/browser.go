// Package browser implements dashboard.PageSource over HTTP: a cookie-aware
// client that follows redirects, extracts links and fills HTML forms.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/dashboard"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 16 << 20

var (
	// ErrNoForm is returned by Submit when the current page has no form.
	ErrNoForm = errors.New("current page has no form")
	// ErrHTTPStatus is returned for 4xx and 5xx responses.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

// Browser is a single browsing context. It remembers the last page so forms
// can be submitted from it.
type Browser struct {
	client    *http.Client
	userAgent string
	log       common.Logger

	mu      sync.Mutex
	current *document
}

type document struct {
	url *url.URL
	doc *goquery.Document
}

// Option configures a Browser.
type Option func(*Browser)

// WithTimeout bounds every request, redirects included.
func WithTimeout(d time.Duration) Option {
	return func(b *Browser) { b.client.Timeout = d }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Browser) { b.client.Transport = rt }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(b *Browser) { b.userAgent = ua }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l common.Logger) Option {
	return func(b *Browser) { b.log = l }
}

// New creates a browser with an empty cookie jar.
func New(opts ...Option) (*Browser, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, common.WrapError(err, "failed to create cookie jar")
	}
	b := &Browser{
		client:    &http.Client{Jar: jar, Timeout: common.RequestTimeout},
		userAgent: common.UserAgent,
		log:       common.GetLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

var _ dashboard.PageSource = (*Browser)(nil)

// Open loads rawURL and makes it the current page.
func (b *Browser) Open(ctx context.Context, rawURL string) (*dashboard.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return b.do(req)
}

// Submit fills the first form of the current page and submits it.
// Fields the page pre-filled are kept unless form overrides them.
func (b *Browser) Submit(ctx context.Context, form dashboard.Form) (*dashboard.Page, error) {
	b.mu.Lock()
	current := b.current
	b.mu.Unlock()
	if current == nil {
		return nil, ErrNoForm
	}

	sel := current.doc.Find("form").First()
	if sel.Length() == 0 {
		return nil, ErrNoForm
	}

	values := formValues(sel)
	for name, value := range form.Fields {
		values.Set(name, value)
	}
	if form.Submit != "" {
		name, value, ok := submitButton(sel, form.Submit)
		if !ok {
			return nil, fmt.Errorf("form has no submit button named %q", form.Submit)
		}
		values.Set(name, value)
	}

	action, _ := sel.Attr("action")
	target, err := current.url.Parse(action)
	if err != nil {
		return nil, fmt.Errorf("bad form action %q: %w", action, err)
	}

	method := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", http.MethodGet)))
	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(),
			strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		target.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	}
	if err != nil {
		return nil, err
	}
	if referer := current.url.String(); referer != "" {
		req.Header.Set("Referer", referer)
	}
	return b.do(req)
}

// Current returns the URL of the current page, or an empty string.
func (b *Browser) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return ""
	}
	return b.current.url.String()
}

func (b *Browser) do(req *http.Request) (*dashboard.Page, error) {
	req.Header.Set("User-Agent", b.userAgent)
	b.log.Debug("%s %s", req.Method, req.URL.Redacted())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, common.WrapError(err, "failed to read response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s returned %s", ErrHTTPStatus, resp.Request.URL.Redacted(), resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, common.WrapError(err, "failed to parse page")
	}

	final := resp.Request.URL
	b.mu.Lock()
	b.current = &document{url: final, doc: doc}
	b.mu.Unlock()

	return &dashboard.Page{
		URL:   final.String(),
		Body:  string(body),
		Links: links(doc),
	}, nil
}

// links returns every anchor href in document order.
func links(doc *goquery.Document) []string {
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		hrefs = append(hrefs, s.AttrOr("href", ""))
	})
	return hrefs
}
