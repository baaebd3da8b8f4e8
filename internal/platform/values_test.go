package platform

import "testing"

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"rfc3339 utc", "2024-05-01T10:00:00Z", 1714557600},
		{"fractional seconds", "2024-05-01T10:00:00.1234567Z", 1714557600},
		{"offset", "2024-05-01T12:00:00+02:00", 1714557600},
		{"no zone", "2024-05-01T10:00:00", 1714557600},
		{"empty", "", 0},
		{"garbage", "yesterday", 0},
		{"not a string", 12.5, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTimestamp(tt.in); got != tt.want {
				t.Errorf("parseTimestamp(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestIntValue(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{float64(300), 300},
		{float64(12.9), 12},
		{"42", 42},
		{" 7 ", 7},
		{"x", 0},
		{nil, 0},
		{true, 0},
	}
	for _, tt := range tests {
		if got := intValue(tt.in); got != tt.want {
			t.Errorf("intValue(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIDValue(t *testing.T) {
	if got := idValue(" abc "); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := idValue(float64(16778240)); got != "16778240" {
		t.Errorf("numeric id rendered as %q", got)
	}
	if got := idValue(nil); got != "" {
		t.Errorf("nil id rendered as %q", got)
	}
}

func TestEmailValue(t *testing.T) {
	for _, in := range []string{"Alice@X.com", "alice@x.com ", "  ALICE@X.COM"} {
		if got := emailValue(in); got != "alice@x.com" {
			t.Errorf("emailValue(%q) = %q", in, got)
		}
	}
	if got := emailValue(nil); got != "" {
		t.Errorf("emailValue(nil) = %q", got)
	}
}

func TestObjects(t *testing.T) {
	if _, ok := objects(nil); ok {
		t.Error("nil should not be a list")
	}
	if _, ok := objects(map[string]any{}); ok {
		t.Error("object should not be a list")
	}
	list, ok := objects([]any{map[string]any{"id": "1"}, "skip", 3.0, map[string]any{"id": "2"}})
	if !ok || len(list) != 2 {
		t.Fatalf("objects = %v, %v", list, ok)
	}
	empty, ok := objects([]any{})
	if !ok || len(empty) != 0 {
		t.Fatalf("empty list = %v, %v", empty, ok)
	}
}
