package titles

import (
	"reflect"
	"testing"

	"github.com/sydlexius/crawler/internal/model"
)

func names(artists []*model.Artist) []string {
	out := []string{}
	for _, a := range artists {
		out = append(out, a.Name)
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw      string
		title    string
		features []string
		version  []string
		token    string
	}{
		{"Levels", "Levels", []string{}, []string{}, ""},
		{"Levels (Skrillex Remix)", "Levels", []string{}, []string{"Skrillex"}, "Remix"},
		{"Wake Me Up - Radio Edit", "Wake Me Up", []string{}, []string{}, "Radio Edit"},
		{"Lonely Together (feat. Rita Ora)", "Lonely Together", []string{"Rita Ora"}, []string{}, ""},
		{"Fade Into Darkness ft. Andreas Moe", "Fade Into Darkness", []string{"Andreas Moe"}, []string{}, ""},
		{"Heaven [feat. Chris Martin] (David Guetta & MORTEN Remix)", "Heaven", []string{"Chris Martin"}, []string{"David Guetta", "MORTEN"}, "Remix"},
		{"Silhouettes (Original Radio Edit)", "Silhouettes", []string{}, []string{}, "Original Radio Edit"},
		{"Song (Live at Wembley)", "Song (Live at Wembley)", []string{}, []string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := Parse(tt.raw)
			if p.Title != tt.title {
				t.Errorf("Title = %q, want %q", p.Title, tt.title)
			}
			if got := names(p.Features); !reflect.DeepEqual(got, tt.features) {
				t.Errorf("Features = %v, want %v", got, tt.features)
			}
			if got := names(p.VersionArtists); !reflect.DeepEqual(got, tt.version) {
				t.Errorf("VersionArtists = %v, want %v", got, tt.version)
			}
			if p.VersionToken != tt.token {
				t.Errorf("VersionToken = %q, want %q", p.VersionToken, tt.token)
			}
		})
	}
}

func TestTrack(t *testing.T) {
	tr := Track("Levels (Skrillex Remix)", "Avicii")
	if !tr.IsVersion() {
		t.Fatal("expected a version track")
	}
	if tr.Title != "Levels" || tr.VersionToken != "Remix" {
		t.Errorf("got %q / %q", tr.Title, tr.VersionToken)
	}
	if got := tr.VersionArtists().Names(); !reflect.DeepEqual(got, []string{"Skrillex"}) {
		t.Errorf("version artists = %v", got)
	}

	orig := Track("Hey Brother (feat. Avicii)", "Avicii, Dan Tyminski")
	if orig.IsVersion() {
		t.Error("expected an original track")
	}
	if orig.Features().Len() != 0 {
		t.Errorf("a main artist must not also be a feature: %v", orig.Features().Names())
	}
	if orig.MainArtists().Len() != 2 {
		t.Errorf("main = %v", orig.MainArtists().Names())
	}
}

func TestCredits(t *testing.T) {
	main, feats := Credits("Avicii & Nicky Romero feat. Etta James, Aloe Blacc")
	if got := names(main); !reflect.DeepEqual(got, []string{"Avicii", "Nicky Romero"}) {
		t.Errorf("main = %v", got)
	}
	if got := names(feats); !reflect.DeepEqual(got, []string{"Etta James", "Aloe Blacc"}) {
		t.Errorf("features = %v", got)
	}

	tr := Track("Levels", "Avicii ft. Etta James")
	if tr.MainArtists().Len() != 1 || tr.Features().Len() != 1 {
		t.Errorf("main = %v, features = %v", tr.MainArtists().Names(), tr.Features().Names())
	}
}
