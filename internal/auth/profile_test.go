package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PaceOps/stride/internal/extract"
)

func profileSite(t *testing.T) (*fakeSite, *httptest.Server) {
	t.Helper()

	site := &fakeSite{}
	mux := http.NewServeMux()
	mux.Handle("/", site.handler())

	mux.HandleFunc("/athletes/1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html class="logged-in"><head><title>Runner Profile | Jane Roe</title></head></html>`)
	})
	mux.HandleFunc("/athletes/2", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html class="logged-in"><head><title>Cyclist Profile | Max Power</title></head></html>`)
	})
	mux.HandleFunc("/athletes/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `<html class="logged-in"><head><title>Page Not Found</title></head></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return site, srv
}

func TestNicknameFromProfile(t *testing.T) {
	_, srv := profileSite(t)
	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	nick, err := s.NicknameFromProfile(context.Background(), srv.URL+"/athletes/1")
	if err != nil {
		t.Fatalf("NicknameFromProfile: %v", err)
	}
	if nick != "Jane Roe" {
		t.Errorf("got %q", nick)
	}

	_, err = s.NicknameFromProfile(context.Background(), srv.URL+"/athletes/404")
	if !errors.Is(err, extract.ErrNicknameNotFound) {
		t.Errorf("expected ErrNicknameNotFound for missing profile, got %v", err)
	}
}

func TestNicknames(t *testing.T) {
	_, srv := profileSite(t)
	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	urls := []string{
		srv.URL + "/athletes/2",
		srv.URL + "/athletes/404",
		srv.URL + "/athletes/1",
	}

	nicks, err := s.Nicknames(context.Background(), urls)
	if err != nil {
		t.Fatalf("Nicknames: %v", err)
	}

	want := []string{"Max Power", "", "Jane Roe"}
	for i := range want {
		if nicks[i] != want[i] {
			t.Errorf("nickname %d: got %q, want %q", i, nicks[i], want[i])
		}
	}
}
