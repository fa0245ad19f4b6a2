package monitor

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"washmon-backend/lib/platforms/pay2wash"
	"washmon-backend/lib/statusstore"
	"washmon-backend/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const (
	testEmail    = "tenant@example.com"
	testPassword = "hunter2"
)

const loginPage = `<html><body><form method="POST" action="/login">
<input type="hidden" name="_token" value="tok"></form></body></html>`

const homePage = `<html><body>
<input type="hidden" id="location" value="89">
<div><input type="hidden" class="machine_pk" value="M1"><span class="js-reservation">W1</span></div>
</body></html>`

type fakePortal struct {
	server *httptest.Server

	mu            sync.Mutex
	authenticated map[string]bool

	statusCode atomic.Int32
	statusHits atomic.Int32
	logoutHits atomic.Int32
	polled     chan struct{}
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		authenticated: map[string]bool{},
		polled:        make(chan struct{}, 64),
	}
	p.statusCode.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		if p.sessionOf(r) == "" {
			http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "s1", Path: "/"})
		}
		w.Write([]byte(loginPage))
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("_token") == "tok" &&
			r.PostForm.Get("email") == testEmail &&
			r.PostForm.Get("password") == testPassword {
			p.setAuthenticated(p.sessionOf(r), true)
		}
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if p.isAuthenticated(p.sessionOf(r)) {
			http.Redirect(w, r, "/home", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("GET /home", func(w http.ResponseWriter, r *http.Request) {
		if !p.isAuthenticated(p.sessionOf(r)) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Write([]byte(homePage))
	})
	mux.HandleFunc("GET /machine_statuses/{location}", func(w http.ResponseWriter, r *http.Request) {
		p.statusHits.Add(1)
		select {
		case p.polled <- struct{}{}:
		default:
		}
		if !p.isAuthenticated(p.sessionOf(r)) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.WriteHeader(int(p.statusCode.Load()))
		w.Write([]byte(`[{"id":"M1","state":"running"}]`))
	})
	mux.HandleFunc("GET /logout", func(w http.ResponseWriter, r *http.Request) {
		p.logoutHits.Add(1)
		p.setAuthenticated(p.sessionOf(r), false)
		http.Redirect(w, r, "/", http.StatusFound)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) sessionOf(r *http.Request) string {
	cookie, err := r.Cookie("portal_session")
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (p *fakePortal) setAuthenticated(session string, value bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticated[session] = value
}

func (p *fakePortal) isAuthenticated(session string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated[session]
}

func (p *fakePortal) options(password string) Options {
	return Options{
		Portal: pay2wash.ClientOptions{
			BaseUrl:  p.server.URL,
			Email:    testEmail,
			Password: password,
		},
	}
}

func memoryStore(t *testing.T) *statusstore.Store {
	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	store, err := statusstore.NewStore(sqlite)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &store
}

func TestRunOnce(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/monitor")
	defer cleanup()

	portal := newFakePortal(t)
	opts := portal.options(testPassword)
	opts.Store = memoryStore(t)
	opts.Metrics = NewMetrics()
	svc := NewService(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	statuses, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.Equal(t, "M1", statuses[0].ID)
	require.Equal(t, "W1", statuses[0].Name)
	require.Equal(t, pay2wash.MachineRunning, statuses[0].State)

	require.Equal(t, int32(1), portal.logoutHits.Load())

	recent, err := opts.Store.Recent(ctx, "89", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "M1", recent[0].MachineID)
}

func TestRunOncePollFailureStillLogsOut(t *testing.T) {
	portal := newFakePortal(t)
	portal.statusCode.Store(http.StatusInternalServerError)
	svc := NewService(portal.options(testPassword))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := svc.RunOnce(ctx)
	require.ErrorIs(t, err, pay2wash.ErrInvalidResponse)
	require.Equal(t, int32(1), portal.logoutHits.Load())
}

func TestRunOnceBadCredentials(t *testing.T) {
	portal := newFakePortal(t)
	svc := NewService(portal.options("not-the-password"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := svc.RunOnce(ctx)
	require.ErrorIs(t, err, pay2wash.ErrUnexpectedRedirect)
	// polling never ran, but the issued session cookie was cleaned up
	require.Equal(t, int32(0), portal.statusHits.Load())
	require.Equal(t, int32(1), portal.logoutHits.Load())
}

func TestRunAbortsAfterFailureBudget(t *testing.T) {
	portal := newFakePortal(t)
	portal.statusCode.Store(http.StatusInternalServerError)
	opts := portal.options(testPassword)
	opts.PollInterval = time.Millisecond * 10
	opts.MaxPollFailures = 2
	svc := NewService(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	err := svc.Run(ctx)
	require.ErrorIs(t, err, pay2wash.ErrInvalidResponse)
	require.GreaterOrEqual(t, portal.statusHits.Load(), int32(2))
	require.Equal(t, int32(1), portal.logoutHits.Load())
}

func TestRunCancelledStillLogsOut(t *testing.T) {
	portal := newFakePortal(t)
	opts := portal.options(testPassword)
	opts.PollInterval = time.Millisecond * 20
	svc := NewService(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()

	// let a couple of polls happen before interrupting
	for i := 0; i < 2; i++ {
		select {
		case <-portal.polled:
		case <-time.After(time.Second * 10):
			t.Fatal("timed out waiting for a poll")
		}
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second * 10):
		t.Fatal("timed out waiting for the run to stop")
	}
	require.Equal(t, int32(1), portal.logoutHits.Load())
}
