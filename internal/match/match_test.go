package match

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sydlexius/crawler/internal/model"
)

func TestBestMatchScenario(t *testing.T) {
	m := New(5)
	m.Suspicious = append(m.Suspicious, "suspicious-token")

	got, ok := m.BestMatch([]string{"Avicii", "avici", "DJ Avicii (suspicious-token)"}, "avicii")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "avicii" {
		t.Errorf("got %q, want avicii", got)
	}
}

func TestBestMatchSuspiciousNeverWins(t *testing.T) {
	m := New(50)
	m.Suspicious = []string{"unknown"}

	got, ok := m.BestMatch([]string{"Unknown", "Radiohead"}, "unknown")
	if !ok || got != "radiohead" {
		t.Errorf("got (%q, %v), want radiohead", got, ok)
	}
}

func TestSuspiciousMatchesWholeWords(t *testing.T) {
	m := New(10)
	tests := []struct {
		name string
		want bool
	}{
		{"The Fatback Band", false},
		{"Outbank", false},
		{"Fatbabs", false},
		{"Unknown Artists Collective", false},
		{"TBA", true},
		{"Artist TBA", true},
		{"N/A", true},
		{"[unknown]", true},
		{"Various Artists", true},
		{"???", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.suspicious(strings.ToLower(tt.name)); got != tt.want {
				t.Errorf("suspicious(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	if got, ok := m.BestMatch([]string{"The Fatback Band"}, "The Fatback Band"); !ok || got != "the fatback band" {
		t.Errorf("got (%q, %v), want the fatback band", got, ok)
	}
}

func TestBestMatchEmpty(t *testing.T) {
	m := New(10)
	if got, ok := m.BestMatch(nil, "x"); ok || got != "" {
		t.Errorf("got (%q, %v) for empty set", got, ok)
	}
}

func TestBestMatchThresholdIsExclusive(t *testing.T) {
	m := New(2)
	// "abcd" is at distance 2 from "ab".
	if _, ok := m.BestMatch([]string{"abcd"}, "ab"); ok {
		t.Error("distance equal to the threshold must not qualify")
	}
	if got, ok := m.BestMatch([]string{"abc"}, "ab"); !ok || got != "abc" {
		t.Errorf("got (%q, %v), want abc", got, ok)
	}
}

func TestBestMatchTieGoesToFirst(t *testing.T) {
	m := New(10)
	got, _ := m.BestMatch([]string{"cat", "bat", "hat"}, "mat")
	if got != "cat" {
		t.Errorf("got %q, want cat", got)
	}
}

func TestBestMatchDeterministicWithWorkers(t *testing.T) {
	var candidates []string
	for i := range 200 {
		candidates = append(candidates, fmt.Sprintf("artist %03d", i))
	}
	// Every "artist 0xy" is at distance 1 or 2 from "artist 0"; the first
	// candidate at the minimum must always win.
	serial := New(5)
	want, ok := serial.BestMatch(candidates, "artist 00")
	if !ok {
		t.Fatal("expected a match")
	}

	parallel := New(5)
	parallel.Workers = 8
	for range 20 {
		got, _ := parallel.BestMatch(candidates, "artist 00")
		if got != want {
			t.Fatalf("parallel result %q differs from serial %q", got, want)
		}
	}
}

func TestMustBestMatch(t *testing.T) {
	m := New(3)
	if _, err := m.MustBestMatch(nil, "x"); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("empty set: got %v, want ErrNoCandidate", err)
	}
	if _, err := m.MustBestMatch([]string{"completely different"}, "x"); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("no qualifying candidate: got %v, want ErrNoCandidate", err)
	}
	got, err := m.MustBestMatch([]string{"Muse"}, "muse")
	if err != nil || got != "muse" {
		t.Errorf("got (%q, %v)", got, err)
	}
}

func TestBestArtistKeepsOriginalEntity(t *testing.T) {
	first := model.NewArtist("Daft Punk")
	dup := model.NewArtist("daft punk")
	other := model.NewArtist("Daft Punk Tribute Band")

	m := New(10)
	got, ok := m.BestArtist([]*model.Artist{first, dup, other}, "DAFT PUNK")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != first {
		t.Errorf("got %p (%s), want the first Daft Punk", got, got.Name)
	}

	if _, err := m.MustBestArtist(nil, "x"); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("got %v, want ErrNoCandidate", err)
	}
}

func TestNewDefaults(t *testing.T) {
	m := New(0)
	if m.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", m.Threshold, DefaultThreshold)
	}
	if Distance("ABC", "abd") != 1 {
		t.Errorf("Distance should ignore case")
	}
	for _, s := range m.Suspicious {
		if s != strings.ToLower(s) {
			t.Errorf("suspicious entry %q must be lower case", s)
		}
	}
}
