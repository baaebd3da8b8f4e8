// Package platform talks to meeting platforms (Microsoft Teams, Zoom) and turns their
// attendance reports into a canonical participant shape.
//
// Each platform is one Adapter implementation. The Factory picks the implementation from a
// meeting's declared platform; adding a platform means a new Name constant, a new Adapter and
// one more case in Factory.Create.
package platform

import (
	"context"
	"fmt"
)

// Name identifies a supported meeting platform.
type Name string

const (
	Teams Name = "teams"
	Zoom  Name = "zoom"
)

// DefaultRole is reported when a platform does not say what a participant was.
const DefaultRole = "Attendee"

// RawParticipant is one platform-specific attendance entry as decoded from the API.
type RawParticipant map[string]any

// Times is a participant's first join and last leave as unix seconds; 0 means unknown.
type Times struct {
	Join  int64
	Leave int64
}

// Meeting is the part of a session the adapters need.
type Meeting struct {
	Platform string
	URL      string
	ID       string
}

// Adapter fetches and interprets attendance data for one platform.
type Adapter interface {
	Name() Name
	// ValidateConfiguration fails with ErrConfiguration when credentials or meeting
	// identifiers are missing.
	ValidateConfiguration() error
	// FetchAttendanceData exchanges credentials for a token and returns the meeting's
	// participants. start and end are accepted for future filtering and currently unused.
	FetchAttendanceData(ctx context.Context, start, end int64) ([]RawParticipant, error)

	ExtractEmail(p RawParticipant) string
	ExtractPlatformUserID(p RawParticipant) string
	ExtractDuration(p RawParticipant) int64
	ExtractTimes(p RawParticipant) Times
	ExtractRole(p RawParticipant) string
}

// Participant is the canonical form of a RawParticipant.
type Participant struct {
	Email           string
	PlatformUserID  string
	DurationSeconds int64
	JoinTime        int64
	LeaveTime       int64
	Role            string
}

// Normalize runs every extractor of a over p. A record without a platform user id fails
// with ErrValidation.
func Normalize(a Adapter, p RawParticipant) (Participant, error) {
	times := a.ExtractTimes(p)
	out := Participant{
		Email:           a.ExtractEmail(p),
		PlatformUserID:  a.ExtractPlatformUserID(p),
		DurationSeconds: a.ExtractDuration(p),
		JoinTime:        times.Join,
		LeaveTime:       times.Leave,
		Role:            a.ExtractRole(p),
	}
	if out.PlatformUserID == "" {
		return Participant{}, fmt.Errorf("%w: missing platform user ID for participant", ErrValidation)
	}
	if out.DurationSeconds < 0 {
		out.DurationSeconds = 0
	}
	if out.Role == "" {
		out.Role = DefaultRole
	}
	return out, nil
}
