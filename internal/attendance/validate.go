package attendance

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		s := sl.Current().Interface().(Session)
		if s.StartTime > 0 && s.EndTime > 0 && s.EndTime <= s.StartTime {
			sl.ReportError(s.EndTime, "end_time", "EndTime", "gtfield", "start_time")
		}
	}, Session{})
	return v
}

// FieldErrors maps a JSON field name to the rule it failed.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// normalizeSession trims text fields and lower-cases the platform and organizer email.
func normalizeSession(s *Session) {
	s.Name = strings.TrimSpace(s.Name)
	s.Platform = strings.ToLower(strings.TrimSpace(s.Platform))
	s.MeetingURL = strings.TrimSpace(s.MeetingURL)
	s.MeetingID = strings.TrimSpace(s.MeetingID)
	s.OrganizerEmail = strings.ToLower(strings.TrimSpace(s.OrganizerEmail))
}

// ValidateSession reports every invalid field wrapped in ErrInvalidInput.
func ValidateSession(s Session) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fields := make(FieldErrors, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, fields)
}
