package shared

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		name string
		ms   int
		want string
	}{
		{name: "zero", ms: 0, want: "0:00"},
		{name: "under a minute", ms: 42000, want: "0:42"},
		{name: "minutes and seconds", ms: 215000, want: "3:35"},
		{name: "over ten minutes", ms: 754000, want: "12:34"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatDuration(tt.ms)
			if got != tt.want {
				t.Errorf("FormatDuration(%d) = %v, want %v", tt.ms, got, tt.want)
			}
		})
	}
}

func TestParseReleaseDate(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  time.Time
		fails bool
	}{
		{name: "day precision", input: "2023-06-15", want: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)},
		{name: "month precision", input: "2023-06", want: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
		{name: "year precision", input: "2023", want: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "garbage", input: "not-a-date", fails: true},
		{name: "empty", input: "", fails: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReleaseDate(tt.input)
			if tt.fails {
				if err == nil {
					t.Errorf("expected error for input %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseReleaseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLaunchCommand(t *testing.T) {
	tc := []struct {
		goos  string
		first string
		fails bool
	}{
		{goos: "darwin", first: "open"},
		{goos: "linux", first: "xdg-open"},
		{goos: "windows", first: "cmd"},
		{goos: "plan9", fails: true},
	}

	for _, tt := range tc {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := launchCommand(tt.goos, "http://127.0.0.1:3000/")
			if tt.fails {
				if err == nil {
					t.Errorf("expected error for %s", tt.goos)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cmd.Args) == 0 || cmd.Args[len(cmd.Args)-1] != "http://127.0.0.1:3000/" {
				t.Errorf("expected url as final argument, got %v", cmd.Args)
			}
			if got := cmd.Args[0]; got != tt.first {
				t.Errorf("expected launcher %s, got %s", tt.first, got)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if a == "" || b == "" {
		t.Fatal("expected non-empty ids")
	}

	if a == b {
		t.Errorf("expected unique ids, got %s twice", a)
	}
}
