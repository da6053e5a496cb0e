package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jorgeroden/plc-alarm-watcher/internal/config"
	alarm "github.com/jorgeroden/plc-alarm-watcher/internal/domain/alarm"
)

var (
	// ErrAuthFailed is returned when a session cannot be established with
	// the PLC, including after the one transparent re-login per fetch.
	ErrAuthFailed = errors.New("plc authentication failed")
	// ErrParseFailed is returned when a page does not match the expected
	// structure. The adapter fails closed: no partial record set is ever
	// handed to reconciliation.
	ErrParseFailed = errors.New("plc page parse failed")
)

// userAgent mirrors a desktop browser; the PLC firmware serves a reduced
// page to unknown agents.
const userAgent = "Mozilla/5.0 (X11; Linux armv7l) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

// sessionTokenPattern extracts the param0 session token the PLC appends to
// post-login URLs.
var sessionTokenPattern = regexp.MustCompile(`param0=([A-F0-9]+)`)

// Client scrapes the PLC web interface. It owns the authenticated session
// (cookie jar plus param0 token) and renews it transparently.
//
// Client is used by a single poll worker and is not safe for concurrent use.
type Client struct {
	// baseURL is the root of the PLC web interface, without trailing slash.
	baseURL string
	// username and password are the PLC web session credentials.
	username string
	password string
	// signalsPath is the path of the sensors page, empty when disabled.
	signalsPath string
	// httpClient carries the cookie jar and the request timeout.
	httpClient *http.Client

	// token is the param0 session token, empty until login.
	token string
}

// Option configures the client.
type Option func(*Client)

// WithTimeout bounds every HTTP request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithSignalsPath enables the sensors page at the provided path.
func WithSignalsPath(path string) Option {
	return func(c *Client) {
		c.signalsPath = path
	}
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a client for the PLC at baseURL.
func New(baseURL, username, password string, opts ...Option) *Client {
	// cookiejar.New with nil options never fails.
	jar, _ := cookiejar.New(nil)

	client := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: config.DefaultRequestTimeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient.Jar == nil {
		client.httpClient.Jar = jar
	}

	return client
}

// AlarmsURL returns the alarms page location without the session token,
// suitable for notifications and the journal.
func (c *Client) AlarmsURL() string {
	return c.baseURL + "/alarms.htm"
}

// SignalsURL returns the sensors page location without the session token.
func (c *Client) SignalsURL() string {
	return c.baseURL + c.signalsPath
}

// Fetch returns the full current alarm snapshot.
//
// When no session exists, or the alarms page no longer parses (the PLC serves
// the login page once the session expires), the client logs in again at most
// once per call before giving up.
func (c *Client) Fetch(ctx context.Context) ([]alarm.Record, error) {
	loggedIn := false

	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}

		loggedIn = true
	}

	records, err := c.fetchAlarms(ctx)
	if err != nil && errors.Is(err, ErrParseFailed) && !loggedIn {
		c.token = ""

		if loginErr := c.login(ctx); loginErr != nil {
			return nil, loginErr
		}

		records, err = c.fetchAlarms(ctx)
	}

	return records, err
}

// FetchSignals returns the current sensors snapshot, sorted by sensor code.
// It renews the session the same way Fetch does.
func (c *Client) FetchSignals(ctx context.Context) ([]Signal, error) {
	if c.signalsPath == "" {
		return nil, nil
	}

	loggedIn := false

	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}

		loggedIn = true
	}

	signals, err := c.fetchSignals(ctx)
	if err != nil && errors.Is(err, ErrParseFailed) && !loggedIn {
		c.token = ""

		if loginErr := c.login(ctx); loginErr != nil {
			return nil, loginErr
		}

		signals, err = c.fetchSignals(ctx)
	}

	return signals, err
}

// login establishes a fresh session: it scrapes the login form, submits the
// credentials and extracts the param0 token from the post-login redirect
// chain (or, failing that, from the first link of the landing page).
func (c *Client) login(ctx context.Context) error {
	doc, _, err := c.getDocument(ctx, c.baseURL+"/login.htm")
	if err != nil {
		return fmt.Errorf("fetch login page: %w", err)
	}

	form := doc.Find(`form[name="beginsession"]`).First()
	if form.Length() == 0 {
		return fmt.Errorf("login form not found: %w", ErrAuthFailed)
	}

	payload := url.Values{}

	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}

		value, _ := input.Attr("value")
		payload.Set(name, value)
	})

	// The PLC names its credential fields param1/param2.
	payload.Set("param1", c.username)
	payload.Set("param2", c.password)

	action, _ := form.Attr("action")
	if action == "" {
		action = "/beginsession"
	}

	postURL := action
	if !strings.HasPrefix(action, "http") {
		postURL = c.baseURL + action
	}

	doc, visited, err := c.postForm(ctx, postURL, payload)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	token := findSessionToken(visited)
	if token == "" {
		// Some firmware versions land on a page whose links carry the token.
		if href, ok := doc.Find("a[href]").First().Attr("href"); ok {
			token = findSessionToken([]string{href})
		}
	}

	if token == "" {
		return fmt.Errorf("no session token after login: %w", ErrAuthFailed)
	}

	c.token = token

	return nil
}

// fetchAlarms retrieves and parses the alarms page.
func (c *Client) fetchAlarms(ctx context.Context) ([]alarm.Record, error) {
	doc, _, err := c.getDocument(ctx, c.AlarmsURL()+"?param0="+c.token)
	if err != nil {
		return nil, fmt.Errorf("fetch alarms page: %w", err)
	}

	return parseAlarms(doc)
}

// fetchSignals retrieves and parses the sensors page.
func (c *Client) fetchSignals(ctx context.Context) ([]Signal, error) {
	pageURL := c.SignalsURL() + "?ovrideStart=0&param0=" + c.token

	doc, _, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch signals page: %w", err)
	}

	return parseSignals(doc)
}

// getDocument issues a GET and parses the response body as HTML.
// It returns the document and the URLs visited, including redirects.
func (c *Client) getDocument(ctx context.Context, pageURL string) (*goquery.Document, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}

	return c.do(req)
}

// postForm submits an urlencoded form and parses the final response body.
func (c *Client) postForm(ctx context.Context, pageURL string, payload url.Values) (*goquery.Document, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pageURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

// do executes the request with redirect tracking and shared browser headers.
func (c *Client) do(req *http.Request) (*goquery.Document, []string, error) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	visited := make([]string, 0, 4)

	// Shallow copy so the redirect recorder stays local to this request.
	client := *c.httpClient
	client.CheckRedirect = func(redirect *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("too many redirects")
		}

		visited = append(visited, redirect.URL.String())

		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	visited = append(visited, resp.Request.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read page body: %w", err)
	}

	return doc, visited, nil
}

// findSessionToken scans URLs for the param0 token.
func findSessionToken(urls []string) string {
	for _, u := range urls {
		if match := sessionTokenPattern.FindStringSubmatch(u); match != nil {
			return match[1]
		}
	}

	return ""
}
