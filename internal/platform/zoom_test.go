package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"meetingsattendance/internal/config"
)

func zoomCreds(base string) config.Zoom {
	return config.Zoom{
		ClientID:     "zid",
		ClientSecret: "zsecret",
		AccountID:    "acct-9",
		TokenURL:     base + "/oauth/token",
		APIBaseURL:   base + "/v2",
	}
}

func newZoomServer(t *testing.T, report http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "zid" || pass != "zsecret" {
			t.Errorf("basic auth = %q:%q (%v)", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "account_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("account_id"); got != "acct-9" {
			t.Errorf("account_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"zoom-token","token_type":"bearer","expires_in":3599}`)
	})
	mux.HandleFunc("/v2/", report)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestZoomValidateConfiguration(t *testing.T) {
	if err := NewZoomAdapter(zoomCreds("x"), Meeting{ID: "123"}, nil).ValidateConfiguration(); err != nil {
		t.Fatalf("complete config: %v", err)
	}
	cases := map[string]struct {
		creds   config.Zoom
		meeting Meeting
	}{
		"no account":           {config.Zoom{ClientID: "a", ClientSecret: "b"}, Meeting{ID: "1"}},
		"no meeting id":        {zoomCreds("x"), Meeting{}},
		"url is not enough":    {zoomCreds("x"), Meeting{URL: "https://zoom.us/j/123"}},
		"no client credential": {config.Zoom{AccountID: "acct"}, Meeting{ID: "1"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := NewZoomAdapter(tc.creds, tc.meeting, nil).ValidateConfiguration()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestZoomFetchAttendanceData(t *testing.T) {
	srv := newZoomServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/report/meetings/85746065432/participants" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer zoom-token" {
			t.Errorf("authorization = %q", got)
		}
		fmt.Fprint(w, `{"page_size":30,"total_records":2,"participants":[
			{"id":"z1","user_email":"carol@x.com","duration":5,"join_time":"2024-05-01T10:00:00Z","leave_time":"2024-05-01T10:05:00Z"},
			{"id":"z2","user_email":"","duration":1}
		]}`)
	})

	a := NewZoomAdapter(zoomCreds(srv.URL), Meeting{ID: "85746065432"}, srv.Client())
	got, err := a.FetchAttendanceData(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d participants, want 2", len(got))
	}
	p, err := Normalize(a, got[0])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := Participant{
		Email:           "carol@x.com",
		PlatformUserID:  "z1",
		DurationSeconds: 300,
		JoinTime:        1714557600,
		LeaveTime:       1714557900,
		Role:            DefaultRole,
	}
	if p != want {
		t.Errorf("normalized = %+v, want %+v", p, want)
	}
}

func TestZoomFetchErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"embedded error code", `{"code":124,"message":"Invalid access token."}`, ErrAuthentication},
		{"missing participants", `{"page_size":30}`, ErrFormat},
		{"participants not a list", `{"participants":{"id":"z1"}}`, ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newZoomServer(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			a := NewZoomAdapter(zoomCreds(srv.URL), Meeting{ID: "1"}, srv.Client())
			if _, err := a.FetchAttendanceData(context.Background(), 0, 0); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestZoomEmbeddedSuccessCode(t *testing.T) {
	srv := newZoomServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":200,"participants":[]}`)
	})
	a := NewZoomAdapter(zoomCreds(srv.URL), Meeting{ID: "1"}, srv.Client())
	got, err := a.FetchAttendanceData(context.Background(), 0, 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestZoomDurationIsMinutes(t *testing.T) {
	a := NewZoomAdapter(config.Zoom{}, Meeting{}, nil)
	if got := a.ExtractDuration(RawParticipant{"duration": float64(5)}); got != 300 {
		t.Errorf("duration = %d, want 300", got)
	}
	if got := a.ExtractDuration(RawParticipant{}); got != 0 {
		t.Errorf("missing duration = %d, want 0", got)
	}
}
