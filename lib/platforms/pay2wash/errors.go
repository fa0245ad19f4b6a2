package pay2wash

import "errors"

var (
	// ErrTransport wraps network, TLS and timeout failures as well as
	// unexpected non-2xx statuses on requests that must succeed.
	ErrTransport = errors.New("transport failure")
	// ErrMissingToken means the login page no longer carries the hidden
	// csrf field, usually a sign the portal markup changed.
	ErrMissingToken = errors.New("login page is missing the csrf token")
	// ErrMissingLocationID means the landing page no longer carries the
	// location element.
	ErrMissingLocationID = errors.New("home page is missing the location id")
	// ErrUnexpectedRedirect means the login or logout flow landed on a
	// path other than the expected one. The portal signals bad
	// credentials this way rather than with a status code.
	ErrUnexpectedRedirect = errors.New("unexpected redirect target")
	// ErrInvalidResponse means the status endpoint returned a non-2xx
	// status or a body that does not decode.
	ErrInvalidResponse = errors.New("invalid machine status response")
	// ErrBadSession means the portal bounced an api route to the login
	// page, i.e. the session died server-side.
	ErrBadSession = errors.New("session is no longer authenticated")
)
