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

func teamsCreds(base string) config.Teams {
	return config.Teams{
		ClientID:     "app",
		ClientSecret: "secret",
		TenantID:     "tenant-1",
		LoginBaseURL: base,
		GraphBaseURL: base + "/v1.0",
	}
}

// newTeamsServer fakes the Microsoft login and Graph endpoints.
func newTeamsServer(t *testing.T, token string, graph http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tenant-1/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("scope"); got != graphScope {
			t.Errorf("scope = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "app" {
			t.Errorf("client_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, token)
	})
	mux.HandleFunc("/v1.0/", graph)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTeamsValidateConfiguration(t *testing.T) {
	full := teamsCreds("http://unused")
	tests := []struct {
		name    string
		creds   config.Teams
		meeting Meeting
		wantErr bool
	}{
		{"complete with id", full, Meeting{ID: "m1"}, false},
		{"complete with url", full, Meeting{URL: "https://teams.microsoft.com/l/meetup-join/abc/0"}, false},
		{"no meeting", full, Meeting{}, true},
		{"no tenant", config.Teams{ClientID: "a", ClientSecret: "b"}, Meeting{ID: "m1"}, true},
		{"no secret", config.Teams{ClientID: "a", TenantID: "t"}, Meeting{ID: "m1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTeamsAdapter(tt.creds, tt.meeting, http.DefaultClient).ValidateConfiguration()
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestTeamsMeetingID(t *testing.T) {
	tests := []struct {
		name    string
		meeting Meeting
		want    string
		ok      bool
	}{
		{"explicit id wins", Meeting{ID: "explicit", URL: "https://teams.microsoft.com/l/meetup-join/fromurl/0"}, "explicit", true},
		{"from url", Meeting{URL: "https://teams.microsoft.com/l/meetup-join/19%3ameeting_abc%40thread.v2/0?context=x"}, "19%3ameeting_abc%40thread.v2", true},
		{"url without segment", Meeting{URL: "https://teams.microsoft.com/l/channel/abc"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewTeamsAdapter(config.Teams{}, tt.meeting, nil).MeetingID()
			if got != tt.want || ok != tt.ok {
				t.Errorf("MeetingID() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestTeamsFetchAttendanceData(t *testing.T) {
	srv := newTeamsServer(t, "graph-token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/me/onlineMeetings/abc123/attendanceReports" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer graph-token" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":[
			{"id":"r1","attendanceRecords":[
				{"id":"u1","emailAddress":"Alice@X.com","totalAttendanceInSeconds":300,"role":"ORGANIZER"},
				{"id":"u2","emailAddress":"bob@x.com","totalAttendanceInSeconds":60}
			]},
			{"id":"r2","attendanceRecords":"unexpected"},
			{"id":"r3","attendanceRecords":[{"id":"u3"}]}
		]}`)
	})

	a := NewTeamsAdapter(teamsCreds(srv.URL), Meeting{URL: "https://teams.microsoft.com/l/meetup-join/abc123/0"}, srv.Client())
	got, err := a.FetchAttendanceData(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d participants, want 3", len(got))
	}
	if id := a.ExtractPlatformUserID(got[2]); id != "u3" {
		t.Errorf("third participant id = %q", id)
	}
}

func TestTeamsFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		body    string
		meeting Meeting
		want    error
	}{
		{"empty token", "", `{"value":[]}`, Meeting{ID: "m1"}, ErrAuthentication},
		{"missing value", "tok", `{"error":{"code":"Forbidden"}}`, Meeting{ID: "m1"}, ErrFormat},
		{"not json", "tok", `<html></html>`, Meeting{ID: "m1"}, ErrFormat},
		{"unresolvable meeting", "tok", `{"value":[]}`, Meeting{URL: "https://example.com/room"}, ErrInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTeamsServer(t, tt.token, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			a := NewTeamsAdapter(teamsCreds(srv.URL), tt.meeting, srv.Client())
			_, err := a.FetchAttendanceData(context.Background(), 0, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTeamsExtractors(t *testing.T) {
	a := NewTeamsAdapter(config.Teams{}, Meeting{}, nil)
	p := RawParticipant{
		"id":                       "u1",
		"emailAddress":             " Alice@X.com ",
		"totalAttendanceInSeconds": float64(300),
		"role":                     "PRESENTER",
		"attendanceIntervals": []any{
			map[string]any{"joinDateTime": "2024-05-01T10:30:00Z", "leaveDateTime": "2024-05-01T10:40:00Z"},
			map[string]any{"joinDateTime": "2024-05-01T10:00:00Z", "leaveDateTime": "2024-05-01T10:10:00Z"},
			map[string]any{"joinDateTime": "2024-05-01T10:50:00Z"},
		},
	}

	if got := a.ExtractEmail(p); got != "alice@x.com" {
		t.Errorf("email = %q", got)
	}
	if got := a.ExtractDuration(p); got != 300 {
		t.Errorf("duration = %d, want 300", got)
	}
	if got := a.ExtractRole(p); got != "Presenter" {
		t.Errorf("role = %q", got)
	}
	times := a.ExtractTimes(p)
	if times.Join != 1714557600 {
		t.Errorf("join = %d, want earliest interval start", times.Join)
	}
	if times.Leave != 1714560000 {
		t.Errorf("leave = %d, want latest interval end", times.Leave)
	}

	empty := RawParticipant{"id": "u2"}
	if got := a.ExtractRole(empty); got != DefaultRole {
		t.Errorf("default role = %q", got)
	}
	if got := a.ExtractTimes(empty); got != (Times{}) {
		t.Errorf("times without intervals = %+v", got)
	}
	if got := a.ExtractDuration(empty); got != 0 {
		t.Errorf("duration without field = %d", got)
	}
}
