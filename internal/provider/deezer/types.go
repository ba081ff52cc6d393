package deezer

// apiError is the error object Deezer embeds in 200 responses.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Deezer error codes of interest.
const (
	errQuotaExceeded = 4
	errDataNotFound  = 800
)

// envelope carries the optional error of every response.
type envelope struct {
	Error *apiError `json:"error,omitempty"`
}

// listResponse is the paginated list shape shared by the search endpoints.
type listResponse[T any] struct {
	Data  []T    `json:"data"`
	Total int    `json:"total"`
	Next  string `json:"next,omitempty"`
}

// artistResult is a single artist entry from a Deezer search or artist endpoint.
type artistResult struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Link          string `json:"link"`
	Picture       string `json:"picture"`
	PictureBig    string `json:"picture_big"`
	PictureXL     string `json:"picture_xl"`
	NbAlbum       int    `json:"nb_album"`
	NbFan         int    `json:"nb_fan"`
	Role          string `json:"role,omitempty"`
}

// albumResult is an album entry.
type albumResult struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	Link        string       `json:"link"`
	CoverXL     string       `json:"cover_xl"`
	RecordType  string       `json:"record_type"`
	ReleaseDate string       `json:"release_date,omitempty"`
	Artist      artistResult `json:"artist"`
}

// trackResult is a track from the search or track endpoints. BPM, ISRC and
// contributors are only filled by the track endpoint.
type trackResult struct {
	ID             int            `json:"id"`
	Title          string         `json:"title"`
	Link           string         `json:"link"`
	Duration       int            `json:"duration"` // seconds
	Rank           int            `json:"rank"`
	ExplicitLyrics bool           `json:"explicit_lyrics"`
	Preview        string         `json:"preview"`
	ISRC           string         `json:"isrc,omitempty"`
	BPM            float64        `json:"bpm,omitempty"`
	DiskNumber     int            `json:"disk_number,omitempty"`
	TrackPosition  int            `json:"track_position,omitempty"`
	AvailableIn    []string       `json:"available_countries,omitempty"`
	Artist         artistResult   `json:"artist"`
	Album          albumResult    `json:"album"`
	Contributors   []artistResult `json:"contributors,omitempty"`
}

// genreResult is an entry of the genre list.
type genreResult struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}
