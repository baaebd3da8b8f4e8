package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"meetingsattendance/internal/config"
)

// ZoomAdapter reads the Zoom past-meeting participants report.
type ZoomAdapter struct {
	creds   config.Zoom
	meeting Meeting
	http    *http.Client
}

// NewZoomAdapter builds an adapter; call ValidateConfiguration before use.
func NewZoomAdapter(creds config.Zoom, meeting Meeting, httpClient *http.Client) *ZoomAdapter {
	if creds.TokenURL == "" {
		creds.TokenURL = "https://zoom.us/oauth/token"
	}
	if creds.APIBaseURL == "" {
		creds.APIBaseURL = "https://api.zoom.us/v2"
	}
	return &ZoomAdapter{creds: creds, meeting: meeting, http: httpClient}
}

func (z *ZoomAdapter) Name() Name { return Zoom }

// ValidateConfiguration requires client id/secret, account id and an explicit meeting id.
func (z *ZoomAdapter) ValidateConfiguration() error {
	if z.creds.ClientID == "" || z.creds.ClientSecret == "" || z.creds.AccountID == "" {
		return fmt.Errorf("%w: zoom client id, secret and account id", ErrConfiguration)
	}
	if z.meeting.ID == "" {
		return fmt.Errorf("%w: zoom meeting ID", ErrConfiguration)
	}
	return nil
}

// FetchAttendanceData returns participants[] of the meeting report.
func (z *ZoomAdapter) FetchAttendanceData(ctx context.Context, start, end int64) ([]RawParticipant, error) {
	if err := z.ValidateConfiguration(); err != nil {
		return nil, err
	}
	// Server-to-server apps use the account_credentials grant with basic client auth.
	token, err := accessToken(ctx, z.http, clientcredentials.Config{
		ClientID:     z.creds.ClientID,
		ClientSecret: z.creds.ClientSecret,
		TokenURL:     z.creds.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {z.creds.AccountID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("zoom: %w", err)
	}

	endpoint := strings.TrimRight(z.creds.APIBaseURL, "/") + "/report/meetings/" + url.PathEscape(z.meeting.ID) + "/participants"
	data, _, err := getJSON(ctx, z.http, endpoint, token)
	if err != nil {
		return nil, fmt.Errorf("zoom: %w", err)
	}
	if code, ok := data["code"]; ok && intValue(code) != 200 {
		msg, _ := data["message"].(string)
		return nil, fmt.Errorf("zoom: %w: code %v %s", ErrAuthentication, code, msg)
	}
	list, ok := objects(data["participants"])
	if !ok {
		return nil, fmt.Errorf("zoom: %w: missing participants[]", ErrFormat)
	}
	participants := make([]RawParticipant, 0, len(list))
	for _, p := range list {
		participants = append(participants, RawParticipant(p))
	}
	return participants, nil
}

func (z *ZoomAdapter) ExtractEmail(p RawParticipant) string {
	return emailValue(p["user_email"])
}

func (z *ZoomAdapter) ExtractPlatformUserID(p RawParticipant) string {
	return idValue(p["id"])
}

// ExtractDuration converts the report's minutes to seconds.
func (z *ZoomAdapter) ExtractDuration(p RawParticipant) int64 {
	return intValue(p["duration"]) * 60
}

func (z *ZoomAdapter) ExtractTimes(p RawParticipant) Times {
	return Times{
		Join:  parseTimestamp(p["join_time"]),
		Leave: parseTimestamp(p["leave_time"]),
	}
}

// ExtractRole always reports DefaultRole; the report carries no role field.
func (z *ZoomAdapter) ExtractRole(p RawParticipant) string {
	return DefaultRole
}
