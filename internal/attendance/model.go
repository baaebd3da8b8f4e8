package attendance

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when a session or attendance record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput wraps validation failures of operator-supplied data.
	ErrInvalidInput = errors.New("invalid input")
)

// NoParticipants is the note recorded when a platform reports an empty meeting.
const NoParticipants = "No participants found for this meeting"

// SessionStatus is the register state of a session.
type SessionStatus string

const (
	StatusOpen   SessionStatus = "open"
	StatusClosed SessionStatus = "closed"
)

// Session is one tracked meeting.
type Session struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name" validate:"required,max=255"`
	Platform           string        `json:"platform" validate:"required,oneof=teams zoom"`
	MeetingURL         string        `json:"meeting_url" validate:"required,url,max=1024"`
	MeetingID          string        `json:"meeting_id,omitempty" validate:"max=255"`
	OrganizerEmail     string        `json:"organizer_email" validate:"required,email"`
	ExpectedDuration   int64         `json:"expected_duration" validate:"gte=0"`
	RequiredAttendance float64       `json:"required_attendance" validate:"gte=0,lte=100"`
	Status             SessionStatus `json:"status"`
	StartTime          int64         `json:"start_time" validate:"gte=0"`
	EndTime            int64         `json:"end_time" validate:"gte=0"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Closed reports whether the register no longer accepts syncs.
func (s Session) Closed() bool { return s.Status == StatusClosed }

// Assignment is the local owner of an attendance record: either a user id or nobody.
// It is stored and serialized as the user id, with 0 meaning unassigned.
type Assignment struct {
	userID int64
}

// Unassigned is the zero Assignment.
var Unassigned = Assignment{}

// Assigned returns an assignment to userID; non-positive ids are Unassigned.
func Assigned(userID int64) Assignment {
	if userID <= 0 {
		return Unassigned
	}
	return Assignment{userID: userID}
}

// UserID returns the owner and whether there is one.
func (a Assignment) UserID() (int64, bool) { return a.userID, a.userID > 0 }

func (a Assignment) IsAssigned() bool { return a.userID > 0 }

// Value is the storage form (0 when unassigned).
func (a Assignment) Value() int64 { return a.userID }

func (a Assignment) String() string {
	if !a.IsAssigned() {
		return "unassigned"
	}
	return "user:" + strconv.FormatInt(a.userID, 10)
}

func (a Assignment) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(a.userID, 10)), nil
}

func (a *Assignment) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = Unassigned
		return nil
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*a = Assigned(id)
	return nil
}

// Record is the attendance of one platform participant in one session.
// (SessionID, PlatformUserID) is unique.
type Record struct {
	ID               int64      `json:"id"`
	SessionID        int64      `json:"session_id"`
	User             Assignment `json:"user_id"`
	PlatformUserID   string     `json:"platform_user_id"`
	DurationSeconds  int64      `json:"attendance_duration"`
	Percentage       float64    `json:"actual_attendance"`
	CompletionMet    bool       `json:"completion_met"`
	Role             string     `json:"role"`
	ManuallyAssigned bool       `json:"manually_assigned"`
}

// Report is the timing snapshot taken when a record is first created.
type Report struct {
	ID              int64  `json:"id"`
	RecordID        int64  `json:"record_id"`
	ReportID        string `json:"report_id"`
	JoinTime        int64  `json:"join_time"`
	LeaveTime       int64  `json:"leave_time"`
	DurationSeconds int64  `json:"attendance_duration"`
}

// UnassignedEntry is an unassigned record with its timing snapshot, for manual review.
type UnassignedEntry struct {
	Record
	Timing *Report `json:"timing,omitempty"`
}

// ReportRow is one line of the session attendance report.
type ReportRow struct {
	Record
	Email string `json:"email,omitempty"`
	// JoinTime and LeaveTime come from the first timing snapshot.
	JoinTime  int64 `json:"join_time"`
	LeaveTime int64 `json:"leave_time"`
	// AttendancePercentage is computed against the session's current expected duration.
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// Stats are the counters of one synchronization.
type Stats struct {
	Processed  int      `json:"processed"`
	Matched    int      `json:"matched"`
	Unassigned int      `json:"unassigned"`
	Errors     []string `json:"errors"`
}

// Summary counts a session's records.
type Summary struct {
	Total         int `json:"total"`
	Assigned      int `json:"assigned"`
	Unassigned    int `json:"unassigned"`
	CompletionMet int `json:"completion_met"`
}

// Completion is the outcome of a completion check for one user.
type Completion struct {
	UserID          int64   `json:"user_id"`
	Met             bool    `json:"completion_met"`
	DurationSeconds int64   `json:"attendance_duration"`
	Percentage      float64 `json:"actual_attendance"`
}
