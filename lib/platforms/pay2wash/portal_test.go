package pay2wash

import (
	"net/http"
	"net/http/httptest"
	"testing"

	_ "embed"
)

//go:embed login_page_test.html
var loginPageTest []byte

//go:embed home_page_test.html
var homePageTest []byte

const (
	testEmail    = "tenant@example.com"
	testPassword = "hunter2"
	testToken    = "abc123"
)

// fakePortal mimics the portal's session behavior: a cookie issued on
// first contact, redirect targets as the only authentication signal,
// and a machine status feed gated on the session being marked live.
type fakePortal struct {
	server *httptest.Server

	statusCode int
	statusBody string

	// serveToken controls whether the login page carries the csrf field.
	serveToken bool

	authenticated map[string]bool

	loginPageHits int
	loginPosts    int
	statusHits    int
	logoutHits    int
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		statusCode:    http.StatusOK,
		statusBody:    `[{"id":"M1","state":"running"}]`,
		serveToken:    true,
		authenticated: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", p.loginPage)
	mux.HandleFunc("POST /login", p.loginSubmit)
	mux.HandleFunc("GET /{$}", p.root)
	mux.HandleFunc("GET /home", p.home)
	mux.HandleFunc("GET /machine_statuses/{location}", p.statuses)
	mux.HandleFunc("GET /logout", p.logout)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) client(t *testing.T) *Client {
	client, err := NewClient(ClientOptions{
		BaseUrl:  p.server.URL,
		Email:    testEmail,
		Password: testPassword,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func (p *fakePortal) sessionOf(r *http.Request) string {
	cookie, err := r.Cookie("portal_session")
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (p *fakePortal) loginPage(w http.ResponseWriter, r *http.Request) {
	p.loginPageHits++
	if p.sessionOf(r) == "" {
		http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "s1", Path: "/"})
	}
	w.Header().Set("Content-Type", "text/html")
	if !p.serveToken {
		w.Write([]byte("<html><body><form></form></body></html>"))
		return
	}
	w.Write(loginPageTest)
}

func (p *fakePortal) loginSubmit(w http.ResponseWriter, r *http.Request) {
	p.loginPosts++
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	session := p.sessionOf(r)
	if session != "" &&
		r.PostForm.Get("_token") == testToken &&
		r.PostForm.Get("email") == testEmail &&
		r.PostForm.Get("password") == testPassword {
		p.authenticated[session] = true
	}
	// the portal redirects to / regardless; only the next hop reveals
	// whether the credentials were accepted
	http.Redirect(w, r, "/", http.StatusFound)
}

func (p *fakePortal) root(w http.ResponseWriter, r *http.Request) {
	if p.authenticated[p.sessionOf(r)] {
		http.Redirect(w, r, "/home", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (p *fakePortal) home(w http.ResponseWriter, r *http.Request) {
	if !p.authenticated[p.sessionOf(r)] {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write(homePageTest)
}

func (p *fakePortal) statuses(w http.ResponseWriter, r *http.Request) {
	p.statusHits++
	if !p.authenticated[p.sessionOf(r)] {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(p.statusCode)
	w.Write([]byte(p.statusBody))
}

func (p *fakePortal) logout(w http.ResponseWriter, r *http.Request) {
	p.logoutHits++
	delete(p.authenticated, p.sessionOf(r))
	http.Redirect(w, r, "/", http.StatusFound)
}
