// Package pay2wash implements an authenticated scraping client for the
// pay2wash laundry portal: csrf-protected form login, cookie session,
// machine status polling and logout.
package pay2wash

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
	"washmon-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("platforms/pay2wash")

const defaultTimeout = time.Second * 30

// Landing identifies the path a portal redirect points at. The portal
// reports login/logout success through redirect targets rather than
// status codes, so each protocol step compares the observed landing
// against the expected one.
type Landing int

const (
	// LandingNone means the response was not a redirect.
	LandingNone Landing = iota
	// LandingRoot is a redirect to "/".
	LandingRoot
	// LandingLogin is a redirect to "/login".
	LandingLogin
	// LandingHome is a redirect to "/home".
	LandingHome
	// LandingOther is a redirect anywhere else.
	LandingOther
)

func (l Landing) String() string {
	switch l {
	case LandingNone:
		return "(no redirect)"
	case LandingRoot:
		return "/"
	case LandingLogin:
		return "/login"
	case LandingHome:
		return "/home"
	default:
		return "(other)"
	}
}

// AuthState tracks the client's progress through the login/logout
// protocol. The transport cannot introspect cookie validity, so this is
// the client's own view, updated per protocol step.
type AuthState int

const (
	AuthStart AuthState = iota
	AuthLoginPageFetched
	AuthSubmitted
	AuthLoggedIn
	AuthLoggedOut
	AuthFailed
)

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	email    string
	password string

	state   AuthState
	session *Session
}

type ClientOptions struct {
	BaseUrl  string
	Email    string
	Password string
	// Timeout applies per request; defaults to 30s.
	Timeout time.Duration
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client.SetTimeout(timeout)

	// redirects are never followed automatically: every landing path is
	// protocol data for the auth state machine
	client.GetClient().CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	telemetry.InstrumentResty(client, "platforms/pay2wash/http")

	c := &Client{
		BaseUrl:  baseUrl,
		Http:     client,
		email:    opts.Email,
		password: opts.Password,
		state:    AuthStart,
	}
	return c, nil
}

// State reports the client's view of the auth protocol.
func (c *Client) State() AuthState {
	return c.state
}

// Session returns the current authenticated session, or nil.
func (c *Client) Session() *Session {
	if c.state != AuthLoggedIn {
		return nil
	}
	return c.session
}

// HasSessionCookie reports whether the portal has issued any cookie to
// this client. Used by callers to decide whether a best-effort logout
// is worth attempting after a failed login.
func (c *Client) HasSessionCookie() bool {
	jar := c.Http.GetClient().Jar
	if jar == nil {
		return false
	}
	return len(jar.Cookies(c.BaseUrl)) > 0
}

func (c *Client) get(ctx context.Context, path string) (*resty.Response, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, path, err)
	}
	return res, nil
}

func (c *Client) postForm(ctx context.Context, path string, form map[string]string) (*resty.Response, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", ErrTransport, path, err)
	}
	return res, nil
}

// landing classifies where a response redirects to. Non-redirect
// responses yield LandingNone.
func (c *Client) landing(res *resty.Response) Landing {
	if res.StatusCode() < 300 || res.StatusCode() > 399 {
		return LandingNone
	}
	location := res.Header().Get("Location")
	target, err := c.BaseUrl.Parse(location)
	if err != nil {
		return LandingOther
	}
	switch target.Path {
	case "", "/":
		return LandingRoot
	case "/login":
		return LandingLogin
	case "/home":
		return LandingHome
	default:
		return LandingOther
	}
}
