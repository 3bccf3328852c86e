// Package mozillion provides a client for the Mozillion customer portal:
// form login with CSRF and optional TOTP, dashboard plan discovery, and the
// two-call data usage fetch.
package mozillion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mozmon/internal/totp"
)

const (
	// DefaultBaseURL is the fixed portal endpoint set.
	DefaultBaseURL = "https://www.mozillion.com"

	requestTimeout = 30 * time.Second
	maxBodySize    = 4 << 20 // 4 MB

	// The portal rejects non-browser clients, so every request carries a
	// desktop browser User-Agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/143.0.0.0 Safari/537.36"
)

// CSRF token extraction, in priority order: hidden form input first, then
// the meta tag fallback.
var csrfPatterns = []*regexp.Regexp{
	regexp.MustCompile(`name="_token"\s+value="([^"]+)"`),
	regexp.MustCompile(`meta name="csrf-token" content="([^"]+)"`),
}

// Client talks to the Mozillion portal. Authenticated calls take a Session
// by value; the client itself holds no per-account state and is safe to
// share across accounts.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a portal client. An empty baseURL selects the production
// portal.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// BaseURL returns the portal base URL this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Login performs the portal login sequence and returns the harvested
// session. Steps: fetch the login page and extract a CSRF token, submit
// credentials, complete the TOTP challenge when a secret is configured, then
// collect every cookie the portal set into a single Cookie header.
func (c *Client) Login(ctx context.Context, creds Credentials) (Session, error) {
	origin := creds.Origin
	if origin == "" {
		origin = c.baseURL
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return Session{}, &AuthError{Step: "creating cookie jar", Err: err}
	}
	hc := &http.Client{Jar: jar, Timeout: requestTimeout}

	// Step 1: login page, for initial cookies and the CSRF token.
	loginURL := c.baseURL + "/login"
	body, _, err := c.doForm(ctx, hc, http.MethodGet, loginURL, nil, http.Header{
		"Origin":     {origin},
		"User-Agent": {userAgent},
	})
	if err != nil {
		return Session{}, &AuthError{Step: "fetching login page", Err: err}
	}

	token := extractCSRF(body)
	if token == "" {
		return Session{}, &AuthError{Step: "no csrf token"}
	}

	// Step 2: submit credentials.
	form := url.Values{
		"_token":   {token},
		"email":    {creds.Email},
		"password": {creds.Password},
	}
	body, _, err = c.doForm(ctx, hc, http.MethodPost, c.baseURL+"/login-post", form, http.Header{
		"Origin":     {origin},
		"Referer":    {loginURL},
		"User-Agent": {userAgent},
	})
	if err != nil {
		return Session{}, &AuthError{Step: "submitting credentials", Err: err}
	}

	// The portal may render a 2FA challenge page carrying a fresh token.
	if fresh := extractCSRF(body); fresh != "" {
		token = fresh
	}

	// Step 3: TOTP challenge.
	if creds.TOTPSecret != "" {
		code, err := totp.Code(creds.TOTPSecret, time.Now())
		if err != nil {
			return Session{}, &AuthError{Step: "generating totp code", Err: err}
		}

		twofaURL := c.baseURL + "/2fa/verify"
		form := url.Values{"_token": {token}, "code": {code}}
		_, finalURL, err := c.doForm(ctx, hc, http.MethodPost, twofaURL, form, http.Header{
			"Origin":     {origin},
			"Referer":    {twofaURL},
			"User-Agent": {userAgent},
		})
		if err != nil {
			return Session{}, &AuthError{Step: "verifying 2fa code", Err: err}
		}
		if strings.Contains(finalURL.Path, "/2fa") {
			return Session{}, &AuthError{Step: "2fa verification failed"}
		}
	}

	// Step 4: harvest the accumulated cookies.
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return Session{}, &AuthError{Step: "parsing base url", Err: err}
	}
	header, xsrf := buildCookieHeader(jar.Cookies(base))
	if header == "" {
		return Session{}, &AuthError{Step: "no cookies after login"}
	}

	return Session{CookieHeader: header, XSRFToken: xsrf}, nil
}

// FetchDashboardPlans fetches the user dashboard and extracts the SIM plans
// offered in its plan selector. A dashboard without a recognizable selector
// yields an empty list, not an error: manual ID entry is always available as
// a fallback.
func (c *Client) FetchDashboardPlans(ctx context.Context, session Session) ([]PlanIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user-dashboard", nil)
	if err != nil {
		return nil, &FetchError{Op: "building dashboard request", Err: err}
	}
	setDocumentHeaders(req.Header, session)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Op: "fetching dashboard", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Op: "fetching dashboard", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Op: "reading dashboard", Err: err}
	}

	return ParseDashboardPlans(string(body)), nil
}

// FetchUsage performs the two-call usage query: a trigger GET that must
// return parseable JSON, then the status GET whose body is the usage
// payload. The payload shape is carrier-defined and returned as decoded
// JSON.
func (c *Client) FetchUsage(ctx context.Context, orderDetailID, simPlanID string, session Session) (any, error) {
	triggerURL := c.baseURL + "/get-data-usage?order_detail_id=" + url.QueryEscape(orderDetailID)
	if _, err := c.getJSON(ctx, "triggering usage update", triggerURL, session); err != nil {
		return nil, err
	}

	statusURL := c.baseURL + "/get-data-usage-status/" + url.PathEscape(simPlanID)
	return c.getJSON(ctx, "fetching usage status", statusURL, session)
}

// getJSON performs an authenticated XHR-style GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, session Session) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	setXHRHeaders(req.Header, session, c.baseURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &FetchError{Op: op, Err: errors.New("response is not JSON")}
	}
	return data, nil
}

// doForm runs one login-sequence request through the jar-backed client and
// returns the body and the final URL after redirects.
func (c *Client) doForm(ctx context.Context, hc *http.Client, method, rawURL string, form url.Values, headers http.Header) (string, *url.URL, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return "", nil, err
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", nil, err
	}
	return string(body), resp.Request.URL, nil
}

// extractCSRF scans HTML for a CSRF token. Returns "" when no pattern
// matches.
func extractCSRF(body string) string {
	for _, pattern := range csrfPatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	return ""
}

// buildCookieHeader joins cookies into a Cookie-style header in jar
// iteration order and URL-decodes the XSRF-TOKEN cookie when present.
func buildCookieHeader(cookies []*http.Cookie) (header, xsrf string) {
	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
		if cookie.Name == "XSRF-TOKEN" {
			if decoded, err := url.QueryUnescape(cookie.Value); err == nil {
				xsrf = decoded
			}
		}
	}
	return strings.Join(pairs, "; "), xsrf
}

// setDocumentHeaders applies the browser navigation headers the dashboard
// page expects.
func setDocumentHeaders(h http.Header, session Session) {
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("DNT", "1")
	h.Set("Priority", "u=1, i")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-GPC", "1")
	h.Set("User-Agent", userAgent)
	h.Set("Cookie", session.CookieHeader)
	if session.XSRFToken != "" {
		h.Set("X-XSRF-TOKEN", session.XSRFToken)
	}
}

// setXHRHeaders applies the fetch-metadata headers the usage endpoints
// expect from the dashboard's own scripts.
func setXHRHeaders(h http.Header, session Session, baseURL string) {
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("DNT", "1")
	h.Set("Priority", "u=1, i")
	h.Set("Referer", baseURL+"/user-dashboard")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-GPC", "1")
	h.Set("User-Agent", userAgent)
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Cookie", session.CookieHeader)
	if session.XSRFToken != "" {
		h.Set("X-XSRF-TOKEN", session.XSRFToken)
	}
}
