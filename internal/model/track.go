package model

import (
	"encoding/json"
	"strings"
	"time"
)

// TrackType distinguishes original recordings from versions of another track
// such as remixes or edits.
type TrackType string

// Track types.
const (
	TrackOriginal TrackType = "original"
	TrackVersion  TrackType = "version"
)

// Unset is the sentinel for audio features that have no value.
const Unset = -1.0

// AudioFeatures are the acoustic descriptors a track can carry. Ratios are in
// [0,1] and use Unset when unknown; pointer fields are nil when unknown.
type AudioFeatures struct {
	Danceability float64 `json:"danceability"`
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Key          *int    `json:"key,omitempty"`
	Mode         *int    `json:"mode,omitempty"`
	Acoustic     *bool   `json:"acoustic,omitempty"`
	Instrumental *bool   `json:"instrumental,omitempty"`
	Live         *bool   `json:"live,omitempty"`
}

// NewAudioFeatures returns features with every value unset.
func NewAudioFeatures() AudioFeatures {
	return AudioFeatures{Danceability: Unset, Energy: Unset, Valence: Unset}
}

// UnmarshalJSON keeps ratios missing from the input unset.
func (f *AudioFeatures) UnmarshalJSON(data []byte) error {
	type plain AudioFeatures
	p := plain(NewAudioFeatures())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = AudioFeatures(p)
	return nil
}

// Track is a single recording with its credits and audio descriptors.
type Track struct {
	Base
	Title        string        `json:"title"`
	Album        *Album        `json:"album,omitempty"`
	Disc         int           `json:"disc,omitempty"`
	Number       int           `json:"number,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Explicit     bool          `json:"explicit,omitempty"`
	BPM          int           `json:"bpm,omitempty"`
	Audio        AudioFeatures `json:"audio_features"`
	Credits      Credits       `json:"credits"`
	Type         TrackType     `json:"type"`
	VersionToken string        `json:"version_token,omitempty"`
	Genres       GenreSet      `json:"genres,omitzero"`
	Lyrics       *string       `json:"lyrics,omitempty"`
	Hidden       *bool         `json:"hidden,omitempty"`
	Plays        int64         `json:"plays,omitempty"`
}

// NewTrack creates an original track with the given title and main artists.
func NewTrack(title string, mainArtists ...*Artist) *Track {
	t := &Track{
		Base:  Base{External: make(ExternalMetadata)},
		Title: strings.TrimSpace(title),
		Audio: NewAudioFeatures(),
		Type:  TrackOriginal,
	}
	for _, a := range mainArtists {
		t.MainArtists().Add(a)
	}
	return t
}

// NewVersionTrack creates a version track, for example a remix, of title.
func NewVersionTrack(title, token string, mainArtists ...*Artist) *Track {
	t := NewTrack(title, mainArtists...)
	t.Type = TrackVersion
	t.VersionToken = strings.TrimSpace(token)
	return t
}

// Kind implements Entity.
func (t *Track) Kind() Kind { return KindTrack }

// IsVersion reports whether the track is a version of another track.
func (t *Track) IsVersion() bool { return t.Type == TrackVersion }

// MainArtists returns the main-artist bucket.
func (t *Track) MainArtists() *CreditSet { return t.Credits.Bucket(RoleMain) }

// Features returns the featured-artist bucket.
func (t *Track) Features() *CreditSet { return t.Credits.Bucket(RoleFeature) }

// VersionArtists returns the version-artist bucket.
func (t *Track) VersionArtists() *CreditSet { return t.Credits.Bucket(RoleVersion) }

// Producers returns the producer bucket.
func (t *Track) Producers() *CreditSet { return t.Credits.Bucket(RoleProducer) }

// Buckets returns the credit sets in role order for this track's type. The
// returned pointers alias the track's own sets.
func (t *Track) Buckets() []*CreditSet {
	roles := RolesFor(t.IsVersion())
	buckets := make([]*CreditSet, len(roles))
	for i, r := range roles {
		buckets[i] = t.Credits.Bucket(r)
	}
	return buckets
}

// Label implements Entity: "Artist A, Artist B - Title (token)".
func (t *Track) Label() string {
	var b strings.Builder
	if names := t.MainArtists().Names(); len(names) > 0 {
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(" - ")
	}
	b.WriteString(t.Title)
	if feats := t.Features().Names(); len(feats) > 0 {
		b.WriteString(" (feat. ")
		b.WriteString(strings.Join(feats, ", "))
		b.WriteString(")")
	}
	if t.IsVersion() && t.VersionToken != "" {
		b.WriteString(" (")
		if va := t.VersionArtists().Names(); len(va) > 0 {
			b.WriteString(strings.Join(va, ", "))
			b.WriteString(" ")
		}
		b.WriteString(t.VersionToken)
		b.WriteString(")")
	}
	return b.String()
}

// UnmarshalJSON fills defaults before decoding so that absent fields keep
// their unset sentinels.
func (t *Track) UnmarshalJSON(data []byte) error {
	type plain Track
	p := plain(*NewTrack(""))
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Track(p)
	if t.Type == "" {
		t.Type = TrackOriginal
	}
	return nil
}
