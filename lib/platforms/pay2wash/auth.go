package pay2wash

import (
	"context"
	"fmt"
	"washmon-backend/lib/htmlutil"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *Client) fail(span trace.Span, err error) error {
	c.state = AuthFailed
	c.session = nil
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Login walks the portal's login handshake:
//
//	GET /login            200, extract csrf token
//	POST /login           expect redirect to /
//	GET /                 expect redirect to /home
//	GET /home             200, extract location id and machine names
//
// Any deviation in a redirect target means bad credentials or a changed
// flow and surfaces as ErrUnexpectedRedirect. On success the client
// holds an authenticated session until Logout.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if c.state == AuthLoggedIn {
		return c.session, nil
	}

	c.state = AuthStart
	res, err := c.get(ctx, "/login")
	if err != nil {
		return nil, c.fail(span, err)
	}
	if !res.IsSuccess() {
		return nil, c.fail(span, fmt.Errorf(
			"%w: GET /login returned status %d", ErrTransport, res.StatusCode(),
		))
	}
	doc, err := htmlutil.ParseDocument(res.Body())
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("GET /login: parse html: %w", err))
	}

	token := htmlutil.FormValue(doc, "_token")
	if token == "" {
		// some portal versions only expose the token as a meta tag
		token = htmlutil.MetaContent(doc, "csrf-token")
	}
	if token == "" {
		return nil, c.fail(span, fmt.Errorf("%w: GET /login", ErrMissingToken))
	}
	c.state = AuthLoginPageFetched

	res, err = c.postForm(ctx, "/login", map[string]string{
		"_token":   token,
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.state = AuthSubmitted
	if landed := c.landing(res); landed != LandingRoot {
		return nil, c.fail(span, fmt.Errorf(
			"%w: POST /login landed on %s, expected /", ErrUnexpectedRedirect, landed,
		))
	}

	res, err = c.get(ctx, "/")
	if err != nil {
		return nil, c.fail(span, err)
	}
	if landed := c.landing(res); landed != LandingHome {
		// an unauthenticated session bounces back to /login here
		return nil, c.fail(span, fmt.Errorf(
			"%w: GET / landed on %s, expected /home", ErrUnexpectedRedirect, landed,
		))
	}

	res, err = c.get(ctx, "/home")
	if err != nil {
		return nil, c.fail(span, err)
	}
	if !res.IsSuccess() {
		return nil, c.fail(span, fmt.Errorf(
			"%w: GET /home returned status %d", ErrTransport, res.StatusCode(),
		))
	}
	doc, err = htmlutil.ParseDocument(res.Body())
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("GET /home: parse html: %w", err))
	}

	session, err := extractSession(doc, token)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.session = session
	c.state = AuthLoggedIn

	span.SetStatus(codes.Ok, "logged in")
	return session, nil
}

// Logout walks the portal's logout handshake:
//
//	GET /logout           expect redirect to /
//	GET /                 expect redirect to /login
//
// Deviation surfaces as ErrUnexpectedRedirect but the server-side
// session is assumed gone either way; callers treat logout as
// best-effort and never let its failure block shutdown.
func (c *Client) Logout(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Logout")
	defer span.End()

	c.session = nil

	res, err := c.get(ctx, "/logout")
	if err != nil {
		return c.fail(span, err)
	}
	if landed := c.landing(res); landed != LandingRoot {
		return c.fail(span, fmt.Errorf(
			"%w: GET /logout landed on %s, expected /", ErrUnexpectedRedirect, landed,
		))
	}

	res, err = c.get(ctx, "/")
	if err != nil {
		return c.fail(span, err)
	}
	if landed := c.landing(res); landed != LandingLogin {
		return c.fail(span, fmt.Errorf(
			"%w: GET / landed on %s, expected /login", ErrUnexpectedRedirect, landed,
		))
	}

	c.state = AuthLoggedOut
	span.SetStatus(codes.Ok, "logged out")
	return nil
}
