package platform

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"meetingsattendance/internal/config"
)

const graphScope = "https://graph.microsoft.com/.default"

var meetupJoinPattern = regexp.MustCompile(`meetup-join/([^/]+)`)

// TeamsAdapter reads Microsoft Graph online meeting attendance reports.
type TeamsAdapter struct {
	creds   config.Teams
	meeting Meeting
	http    *http.Client
}

// NewTeamsAdapter builds an adapter; call ValidateConfiguration before use.
func NewTeamsAdapter(creds config.Teams, meeting Meeting, httpClient *http.Client) *TeamsAdapter {
	if creds.LoginBaseURL == "" {
		creds.LoginBaseURL = "https://login.microsoftonline.com"
	}
	if creds.GraphBaseURL == "" {
		creds.GraphBaseURL = "https://graph.microsoft.com/v1.0"
	}
	return &TeamsAdapter{creds: creds, meeting: meeting, http: httpClient}
}

func (t *TeamsAdapter) Name() Name { return Teams }

// ValidateConfiguration requires the app client id/secret, the tenant id and a meeting URL or id.
func (t *TeamsAdapter) ValidateConfiguration() error {
	if t.creds.ClientID == "" || t.creds.ClientSecret == "" {
		return fmt.Errorf("%w: teams client id and secret", ErrConfiguration)
	}
	if t.creds.TenantID == "" {
		return fmt.Errorf("%w: missing Microsoft tenant ID for Teams integration", ErrConfiguration)
	}
	if t.meeting.URL == "" && t.meeting.ID == "" {
		return fmt.Errorf("%w: teams meeting URL or meeting ID", ErrConfiguration)
	}
	return nil
}

// FetchAttendanceData flattens value[].attendanceRecords[] from every attendance report.
func (t *TeamsAdapter) FetchAttendanceData(ctx context.Context, start, end int64) ([]RawParticipant, error) {
	if err := t.ValidateConfiguration(); err != nil {
		return nil, err
	}
	token, err := accessToken(ctx, t.http, clientcredentials.Config{
		ClientID:     t.creds.ClientID,
		ClientSecret: t.creds.ClientSecret,
		TokenURL:     strings.TrimRight(t.creds.LoginBaseURL, "/") + "/" + t.creds.TenantID + "/oauth2/v2.0/token",
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	})
	if err != nil {
		return nil, fmt.Errorf("teams: %w", err)
	}

	meetingID, ok := t.MeetingID()
	if !ok {
		return nil, fmt.Errorf("teams: %w: cannot determine meeting ID from session", ErrInvalidData)
	}

	endpoint := strings.TrimRight(t.creds.GraphBaseURL, "/") + "/me/onlineMeetings/" + meetingID + "/attendanceReports"
	data, status, err := getJSON(ctx, t.http, endpoint, token)
	if err != nil {
		return nil, fmt.Errorf("teams: %w", err)
	}
	reports, ok := objects(data["value"])
	if !ok {
		return nil, fmt.Errorf("teams: %w: status %d, missing value[]", ErrFormat, status)
	}

	var participants []RawParticipant
	for _, report := range reports {
		records, ok := objects(report["attendanceRecords"])
		if !ok {
			continue
		}
		for _, rec := range records {
			participants = append(participants, RawParticipant(rec))
		}
	}
	return participants, nil
}

// MeetingID prefers the explicit id and falls back to the meetup-join segment of the URL.
func (t *TeamsAdapter) MeetingID() (string, bool) {
	if t.meeting.ID != "" {
		return t.meeting.ID, true
	}
	if m := meetupJoinPattern.FindStringSubmatch(t.meeting.URL); len(m) == 2 && m[1] != "" {
		return m[1], true
	}
	return "", false
}

func (t *TeamsAdapter) ExtractEmail(p RawParticipant) string {
	return emailValue(p["emailAddress"])
}

func (t *TeamsAdapter) ExtractPlatformUserID(p RawParticipant) string {
	return idValue(p["id"])
}

// ExtractDuration reads totalAttendanceInSeconds, which Graph already reports in seconds.
func (t *TeamsAdapter) ExtractDuration(p RawParticipant) int64 {
	return intValue(p["totalAttendanceInSeconds"])
}

// ExtractTimes reduces the attendance intervals to earliest join and latest leave.
func (t *TeamsAdapter) ExtractTimes(p RawParticipant) Times {
	var times Times
	intervals, _ := objects(p["attendanceIntervals"])
	for _, iv := range intervals {
		if join := parseTimestamp(iv["joinDateTime"]); join != 0 && (times.Join == 0 || join < times.Join) {
			times.Join = join
		}
		if leave := parseTimestamp(iv["leaveDateTime"]); leave > times.Leave {
			times.Leave = leave
		}
	}
	return times
}

// ExtractRole capitalises the Graph role ("ORGANIZER" -> "Organizer").
func (t *TeamsAdapter) ExtractRole(p RawParticipant) string {
	role, _ := p["role"].(string)
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return DefaultRole
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
