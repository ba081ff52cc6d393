// Package titles splits raw track titles into the structured parts the
// crawler cares about: the bare title, featured artists and a version
// (remix) annotation.
package titles

import (
	"regexp"
	"strings"

	"github.com/sydlexius/crawler/internal/model"
)

// Parsed is the result of splitting a raw title.
type Parsed struct {
	Title          string
	Features       []*model.Artist
	VersionArtists []*model.Artist
	VersionToken   string
}

// IsVersion reports whether a version annotation was found.
func (p Parsed) IsVersion() bool { return p.VersionToken != "" }

var (
	// "(feat. X)", "[ft. X]" or a trailing "feat. X".
	featGroup = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:feat\.?|ft\.?|featuring)\s+([^\)\]]+)[\)\]]`)
	featTail  = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.|featuring)\s+(.+)$`)

	versionTokens = `remix|edit|mix|rework|bootleg|vip|version|dub|flip|remaster(?:ed)?|live|acoustic|instrumental`
	// "(X Remix)" or "[Radio Edit]".
	versionGroup = regexp.MustCompile(`(?i)\s*[\(\[]\s*(.*?)\s*\b(` + versionTokens + `)\s*[\)\]]`)
	// " - X Remix" at the end of the title.
	versionDash = regexp.MustCompile(`(?i)\s+-\s+(.*?)\s*\b(` + versionTokens + `)\s*$`)
)

// descriptive words kept in the token rather than read as artist names.
var descriptors = map[string]bool{
	"radio": true, "extended": true, "club": true, "original": true,
	"single": true, "album": true, "short": true, "long": true, "dub": true,
}

// Parse splits raw into its parts. Unrecognised annotations stay in the title.
func Parse(raw string) Parsed {
	title := strings.TrimSpace(raw)
	var p Parsed

	if m := featGroup.FindStringSubmatchIndex(title); m != nil {
		p.Features = model.SplitArtists(title[m[2]:m[3]])
		title = title[:m[0]] + title[m[1]:]
	} else if m := featTail.FindStringSubmatchIndex(title); m != nil {
		p.Features = model.SplitArtists(title[m[2]:m[3]])
		title = title[:m[0]]
	}

	for _, re := range []*regexp.Regexp{versionGroup, versionDash} {
		m := re.FindStringSubmatchIndex(title)
		if m == nil {
			continue
		}
		who, token := splitDescriptor(title[m[2]:m[3]], title[m[4]:m[5]])
		p.VersionToken = token
		p.VersionArtists = model.SplitArtists(who)
		title = title[:m[0]] + title[m[1]:]
		break
	}

	p.Title = strings.TrimSpace(title)
	return p
}

// splitDescriptor moves trailing descriptive words ("Radio", "Extended")
// from the artist part into the token.
func splitDescriptor(who, token string) (string, string) {
	words := strings.Fields(who)
	cut := len(words)
	for cut > 0 && descriptors[strings.ToLower(words[cut-1])] {
		cut--
	}
	if cut < len(words) {
		token = strings.Join(words[cut:], " ") + " " + token
	}
	return strings.Join(words[:cut], " "), token
}

var artistFeat = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.|featuring)\s+`)

// Credits splits a credited-artist string such as "A & B feat. C" into main
// and featured artists.
func Credits(artists string) (main, features []*model.Artist) {
	parts := artistFeat.Split(artists, 2)
	main = model.SplitArtists(parts[0])
	if len(parts) == 2 {
		features = model.SplitArtists(parts[1])
	}
	return main, features
}

// Track builds a master track from a raw title and a credited-artist string.
func Track(rawTitle, artists string) *model.Track {
	p := Parse(rawTitle)
	main, feats := Credits(artists)
	p.Features = append(feats, p.Features...)

	var t *model.Track
	if p.IsVersion() {
		t = model.NewVersionTrack(p.Title, p.VersionToken, main...)
		for _, a := range p.VersionArtists {
			t.VersionArtists().Add(a)
		}
	} else {
		t = model.NewTrack(p.Title, main...)
	}
	for _, a := range p.Features {
		if !t.MainArtists().Contains(a) {
			t.Features().Add(a)
		}
	}
	return t
}
