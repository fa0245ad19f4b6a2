package pay2wash

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMachineStatuses(t *testing.T) {
	portal := newFakePortal(t)
	portal.statusBody = `[{"id":"1","type":"washer","state":"idle","wifi_strength":3}]`
	client := portal.client(t)
	ctx := context.Background()

	_, err := client.Login(ctx)
	require.NoError(t, err)

	statuses, err := client.MachineStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.Equal(t, "1", statuses[0].ID)
	require.Equal(t, "washer", statuses[0].Type)
	require.Equal(t, MachineIdle, statuses[0].State)
}

func TestMachineStatusesKeyedFeed(t *testing.T) {
	portal := newFakePortal(t)
	portal.statusBody = `{
		"476": {
			"running": true,
			"reserved": false,
			"starter": 1042,
			"in_maintenance": 0,
			"remaining_time": "01:05",
			"gateway_offline": 0,
			"remaining_time_is_from_machine": 1,
			"controller_logic": 2
		},
		"480": {"running": false, "reserved": false, "in_maintenance": 0}
	}`
	client := portal.client(t)
	ctx := context.Background()

	_, err := client.Login(ctx)
	require.NoError(t, err)

	statuses, err := client.MachineStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	require.Equal(t, "476", statuses[0].ID)
	require.Equal(t, "W2", statuses[0].Name)
	require.Equal(t, MachineRunning, statuses[0].State)
	require.NotNil(t, statuses[0].Raw.RemainingTime)
	require.Equal(t, time.Hour+5*time.Minute, statuses[0].Raw.RemainingTime.Duration)

	require.Equal(t, "480", statuses[1].ID)
	require.Equal(t, "D1", statuses[1].Name)
	require.Equal(t, MachineIdle, statuses[1].State)
}

func TestMachineStatusesNon2xx(t *testing.T) {
	portal := newFakePortal(t)
	client := portal.client(t)
	ctx := context.Background()

	_, err := client.Login(ctx)
	require.NoError(t, err)

	portal.statusCode = http.StatusInternalServerError
	_, err = client.MachineStatuses(ctx)
	require.ErrorIs(t, err, ErrInvalidResponse)
	// a failed poll does not touch the auth state
	require.Equal(t, AuthLoggedIn, client.State())
}

func TestMachineStatusesMalformedBody(t *testing.T) {
	portal := newFakePortal(t)
	client := portal.client(t)
	ctx := context.Background()

	_, err := client.Login(ctx)
	require.NoError(t, err)

	portal.statusBody = `<html>not json</html>`
	_, err = client.MachineStatuses(ctx)
	require.ErrorIs(t, err, ErrInvalidResponse)
	require.Equal(t, AuthLoggedIn, client.State())
}

func TestMachineStatusesDeadSession(t *testing.T) {
	portal := newFakePortal(t)
	client := portal.client(t)
	ctx := context.Background()

	_, err := client.Login(ctx)
	require.NoError(t, err)

	// expire the session server-side; the api route now bounces to the
	// login page
	portal.authenticated = map[string]bool{}
	_, err = client.MachineStatuses(ctx)
	require.ErrorIs(t, err, ErrBadSession)
	require.Equal(t, AuthLoggedIn, client.State())
}

func TestMachineStatusesRequiresLogin(t *testing.T) {
	portal := newFakePortal(t)
	client := portal.client(t)

	_, err := client.MachineStatuses(context.Background())
	require.ErrorIs(t, err, ErrBadSession)
	require.Equal(t, 0, portal.statusHits)
}
