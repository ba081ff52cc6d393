package lastfm

import (
	"encoding/json"
	"strconv"
)

// Last.fm API response types.

// apiError is the body Last.fm returns with HTTP 200 on failures.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// Last.fm error codes of interest.
const (
	errInvalidParameters = 6
	errInvalidAPIKey     = 10
	errRateLimited       = 29
)

// count is a number Last.fm sends either as a JSON string or a JSON number.
type count int64

func (c *count) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*c = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*c = count(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = count(n)
	return nil
}

// Tag is a single tag.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TagList holds tags. Last.fm sends a bare object instead of an array when
// there is exactly one tag.
type TagList struct {
	Tag []Tag `json:"tag"`
}

func (l *TagList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tag json.RawMessage `json:"tag"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// An empty tag list arrives as "".
		return nil
	}
	if len(raw.Tag) == 0 {
		return nil
	}
	if raw.Tag[0] == '{' {
		var one Tag
		if err := json.Unmarshal(raw.Tag, &one); err != nil {
			return err
		}
		l.Tag = []Tag{one}
		return nil
	}
	return json.Unmarshal(raw.Tag, &l.Tag)
}

// Names returns the non-empty tag names.
func (l TagList) Names() []string {
	var out []string
	for _, t := range l.Tag {
		if t.Name != "" {
			out = append(out, t.Name)
		}
	}
	return out
}

// Wiki holds a summary and full text.
type Wiki struct {
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// TrackSearchResponse is the top-level response from track.search.
type TrackSearchResponse struct {
	Results struct {
		TotalResults count `json:"opensearch:totalResults"`
		TrackMatches struct {
			Track []SearchTrack `json:"track"`
		} `json:"trackmatches"`
	} `json:"results"`
}

// SearchTrack is a single track.search hit.
type SearchTrack struct {
	Name      string `json:"name"`
	Artist    string `json:"artist"`
	URL       string `json:"url"`
	Listeners count  `json:"listeners"`
	MBID      string `json:"mbid"`
}

// TrackInfoResponse is the top-level response from track.getInfo.
type TrackInfoResponse struct {
	Track TrackInfo `json:"track"`
}

// TrackInfo is the full track info.
type TrackInfo struct {
	Name      string  `json:"name"`
	MBID      string  `json:"mbid"`
	URL       string  `json:"url"`
	Duration  count   `json:"duration"` // milliseconds
	Listeners count   `json:"listeners"`
	Playcount count   `json:"playcount"`
	Artist    struct {
		Name string `json:"name"`
		MBID string `json:"mbid"`
		URL  string `json:"url"`
	} `json:"artist"`
	Album *struct {
		Artist string `json:"artist"`
		Title  string `json:"title"`
		MBID   string `json:"mbid"`
		URL    string `json:"url"`
	} `json:"album"`
	TopTags TagList `json:"toptags"`
	Wiki    *Wiki   `json:"wiki"`
}

// ArtistSearchResponse is the top-level response from artist.search.
type ArtistSearchResponse struct {
	Results struct {
		ArtistMatches struct {
			Artist []SearchArtist `json:"artist"`
		} `json:"artistmatches"`
	} `json:"results"`
}

// SearchArtist is a single artist.search hit.
type SearchArtist struct {
	Name      string `json:"name"`
	Listeners count  `json:"listeners"`
	MBID      string `json:"mbid"`
	URL       string `json:"url"`
}

// ArtistInfoResponse is the top-level response from artist.getinfo.
type ArtistInfoResponse struct {
	Artist ArtistInfo `json:"artist"`
}

// ArtistInfo is the full artist info from artist.getinfo.
type ArtistInfo struct {
	Name  string `json:"name"`
	MBID  string `json:"mbid"`
	URL   string `json:"url"`
	Stats struct {
		Listeners count `json:"listeners"`
		Playcount count `json:"playcount"`
	} `json:"stats"`
	Bio  Wiki    `json:"bio"`
	Tags TagList `json:"tags"`
}

// AlbumSearchResponse is the top-level response from album.search.
type AlbumSearchResponse struct {
	Results struct {
		TotalResults count `json:"opensearch:totalResults"`
		AlbumMatches struct {
			Album []SearchAlbum `json:"album"`
		} `json:"albummatches"`
	} `json:"results"`
}

// SearchAlbum is a single album.search hit.
type SearchAlbum struct {
	Name   string  `json:"name"`
	Artist string  `json:"artist"`
	URL    string  `json:"url"`
	MBID   string  `json:"mbid"`
	Image  []Image `json:"image"`
}

// Image is a sized image link.
type Image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// TagInfoResponse is the top-level response from tag.getinfo.
type TagInfoResponse struct {
	Tag struct {
		Name  string `json:"name"`
		Total count  `json:"total"`
		Reach count  `json:"reach"`
		Wiki  Wiki   `json:"wiki"`
	} `json:"tag"`
}
