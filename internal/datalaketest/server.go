// Package datalaketest provides an in-process fake of the data lake REST API for tests.
package datalaketest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Call is one request received by the fake.
type Call struct {
	Kind       string // login, logout, event, upload
	Path       string
	Form       map[string]string
	BatchRunID string
	Records    int // uploads only: length of the data array
	At         time.Time
}

// Server emulates /apikey, /apikey/logout, BatchRun events and DataPoint uploads.
// Behaviour hooks may be set before the first request.
type Server struct {
	*httptest.Server

	// Token returned by a successful login.
	Token string
	// Password expected at login; any other password is answered with 401.
	Password string
	// LogoutStatus is the status of logout responses (default 200).
	LogoutStatus int
	// EventStatus decides the status of the n-th (1-based) event of eventType.
	EventStatus func(eventType, batchRunID string, n int) int
	// UploadStatus decides the status of the n-th (1-based) upload. 0 drops the connection.
	UploadStatus func(requestID string, n int) int
	// UploadDelay is held while an upload is in flight.
	UploadDelay time.Duration

	mu          sync.Mutex
	calls       []Call
	eventCounts map[string]int
	uploads     int
	inFlight    int
	maxInFlight int
}

// NewServer starts a fake that accepts every request.
func NewServer() *Server {
	s := &Server{Token: "session-token", Password: "secret", eventCounts: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Calls returns a copy of the received requests in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Kinds returns the kinds of the received requests, with events as "event:<type>".
func (s *Server) Kinds() []string {
	var kinds []string
	for _, c := range s.Calls() {
		if c.Kind == "event" {
			kinds = append(kinds, "event:"+c.Form["eventType"])
			continue
		}
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

// CallsOf returns the requests of one kind.
func (s *Server) CallsOf(kind string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// MaxInFlight is the highest number of uploads that were processed simultaneously.
func (s *Server) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *Server) record(c Call) {
	c.At = time.Now()
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/apikey":
		s.login(w, r)
	case r.URL.Path == "/apikey/logout":
		s.logout(w, r)
	case strings.HasPrefix(r.URL.Path, "/marketdashboard/BatchRun/") && strings.HasSuffix(r.URL.Path, "/Events"):
		s.event(w, r)
	case r.URL.Path == "/marketdashboard/DataPoint":
		s.upload(w, r)
	default:
		http.NotFound(w, r)
	}
}

func formOf(r *http.Request) map[string]string {
	out := map[string]string{}
	for k, v := range r.Form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.record(Call{Kind: "login", Path: r.URL.Path, Form: formOf(r)})
	if r.PostForm.Get("password") != s.Password {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "invalid username or password")
		return
	}
	_, _ = io.WriteString(w, s.Token)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.record(Call{Kind: "logout", Path: r.URL.Path, Form: formOf(r)})
	if s.LogoutStatus != 0 {
		w.WriteHeader(s.LogoutStatus)
	}
}

func (s *Server) event(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/marketdashboard/BatchRun/"), "/Events")
	form := formOf(r)
	s.record(Call{Kind: "event", Path: r.URL.Path, Form: form, BatchRunID: id})

	if form["apikey"] != s.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	s.eventCounts[form["eventType"]]++
	n := s.eventCounts[form["eventType"]]
	s.mu.Unlock()

	if s.EventStatus != nil {
		if status := s.EventStatus(form["eventType"], id, n); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, "batch run "+id+" rejected")
			return
		}
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.uploads++
	n := s.uploads
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	_ = r.ParseMultipartForm(32 << 20)
	form := formOf(r)
	var data []map[string]interface{}
	_ = json.Unmarshal([]byte(form["data"]), &data)
	s.record(Call{Kind: "upload", Path: r.URL.Path, Form: form, BatchRunID: form["batchRunId"], Records: len(data)})

	if s.UploadDelay > 0 {
		time.Sleep(s.UploadDelay)
	}
	status := http.StatusOK
	if s.UploadStatus != nil {
		status = s.UploadStatus(form["requestId"], n)
	}
	if status == 0 {
		panic(http.ErrAbortHandler)
	}
	w.WriteHeader(status)
}
