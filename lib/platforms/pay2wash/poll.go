package pay2wash

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// MachineStatuses fetches one snapshot of the session's location. It is
// only callable while logged in. A redirect on the api route means the
// server dropped the session (ErrBadSession); any other non-2xx status
// or an undecodable body is ErrInvalidResponse. Neither mutates the
// auth state: retry and re-login policy belongs to the caller.
func (c *Client) MachineStatuses(ctx context.Context) ([]MachineStatus, error) {
	ctx, span := tracer.Start(ctx, "client:MachineStatuses")
	defer span.End()

	if c.state != AuthLoggedIn || c.session == nil {
		err := fmt.Errorf("%w: statuses requested without a logged-in session", ErrBadSession)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	path := "/machine_statuses/" + c.session.Location
	res, err := c.get(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if landed := c.landing(res); landed != LandingNone {
		err := fmt.Errorf("%w: GET %s redirected to %s", ErrBadSession, path, landed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("%w: GET %s returned status %d", ErrInvalidResponse, path, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	statuses, err := DecodeStatuses(res.Body(), c.session.MachineNames)
	if err != nil {
		err = fmt.Errorf("GET %s: %w", path, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return statuses, nil
}
