package musicbrainz

// MusicBrainz API response types.

// searchResponse is the envelope shared by the search endpoints. Only the
// list matching the searched entity is populated.
type searchResponse struct {
	Created       string           `json:"created"`
	Count         int              `json:"count"`
	Offset        int              `json:"offset"`
	Artists       []MBArtist       `json:"artists"`
	Recordings    []MBRecording    `json:"recordings"`
	ReleaseGroups []MBReleaseGroup `json:"release-groups"`
	Tags          []MBTag          `json:"tags"`
}

// isrcResponse is returned by the /isrc lookup.
type isrcResponse struct {
	ISRC       string        `json:"isrc"`
	Recordings []MBRecording `json:"recordings"`
}

// errorResponse is the body of a failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// MBArtist represents a MusicBrainz artist entity.
type MBArtist struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	SortName       string     `json:"sort-name"`
	Type           string     `json:"type"`
	Disambiguation string     `json:"disambiguation"`
	Country        string     `json:"country"`
	Score          int        `json:"score"`
	LifeSpan       MBLifeSpan `json:"life-span"`
	Tags           []MBTag    `json:"tags"`
	Genres         []MBGenre  `json:"genres"`
}

// MBLifeSpan represents the begin/end dates of an artist.
type MBLifeSpan struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
	Ended bool   `json:"ended"`
}

// MBTag represents a user-submitted tag.
type MBTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Score int    `json:"score"`
}

// MBGenre represents a genre classification.
type MBGenre struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// MBArtistCredit is one entry of an artist credit. JoinPhrase joins it to
// the next entry, e.g. " feat. ".
type MBArtistCredit struct {
	Name       string   `json:"name"`
	JoinPhrase string   `json:"joinphrase"`
	Artist     MBArtist `json:"artist"`
}

// MBRecording represents a MusicBrainz recording.
type MBRecording struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Length         int              `json:"length"` // milliseconds
	Disambiguation string           `json:"disambiguation"`
	Score          int              `json:"score"`
	Video          bool             `json:"video"`
	ArtistCredit   []MBArtistCredit `json:"artist-credit"`
	Releases       []MBRelease      `json:"releases"`
	ISRCs          []string         `json:"isrcs"`
	Tags           []MBTag          `json:"tags"`
}

// MBRelease is a release a recording appears on.
type MBRelease struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Date         string         `json:"date"`
	ReleaseGroup MBReleaseGroup `json:"release-group"`
	Media        []MBMedium     `json:"media"`
}

// MBMedium is one disc of a release, limited to the matched track.
type MBMedium struct {
	Position int       `json:"position"`
	Track    []MBTrack `json:"track"`
}

// MBTrack is the position of a recording on a medium.
type MBTrack struct {
	Number string `json:"number"`
}

// MBReleaseGroup represents a MusicBrainz release group entity.
type MBReleaseGroup struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	PrimaryType      string           `json:"primary-type"`
	SecondaryTypes   []string         `json:"secondary-types"`
	FirstReleaseDate string           `json:"first-release-date"`
	Score            int              `json:"score"`
	ArtistCredit     []MBArtistCredit `json:"artist-credit"`
	Tags             []MBTag          `json:"tags"`
}
