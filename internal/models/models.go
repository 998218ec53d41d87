// Package models holds the shared structs that flow between the merge
// orchestrator and the rest of the core: the input record an external
// collaborator hands in, and the request/result shapes the control
// surface and worker exchange. Validate tags drive the control
// surface's go-playground/validator pass before a request ever reaches
// the orchestrator.
package models

// InputItem is a single audio file the driver wants merged into the
// device's media catalog. LocalPath and Artwork are read by the
// orchestrator before upload; everything else flows into the catalog row
// set written by the item inserter.
type InputItem struct {
	LocalPath      string `json:"local_path" validate:"required"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album"`
	AlbumArtist    string `json:"album_artist,omitempty"`
	Genre          string `json:"genre"`
	Year           int    `json:"year,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	FileSize       int64  `json:"file_size"`
	RemoteFilename string `json:"remote_filename" validate:"required"`
	Artwork        []byte `json:"-"`
	Lyrics         string `json:"lyrics,omitempty"`

	// TrackNumber/TrackCount/DiscNumber/DiscCount are optional; zero means
	// "not supplied" and the item inserter falls back to its own
	// incrementing counter and a count of 1.
	TrackNumber int `json:"track_number,omitempty"`
	TrackCount  int `json:"track_count,omitempty"`
	DiscNumber  int `json:"disc_number,omitempty"`
	DiscCount   int `json:"disc_count,omitempty"`

	// IsCompilation marks a various-artists album track; the inserter uses
	// it to decide whether the album also needs an entity-type-4 artwork
	// linkage row.
	IsCompilation bool `json:"is_compilation,omitempty"`
}

// RingtoneItem is the tone-specific analogue of InputItem; it has
// no artist/album/genre linkage and no artwork.
type RingtoneItem struct {
	LocalPath      string `json:"local_path" validate:"required"`
	Title          string `json:"title"`
	DurationMS     int64  `json:"duration_ms"`
	FileSize       int64  `json:"file_size"`
	RemoteFilename string `json:"remote_filename" validate:"required"`
}

// PlaylistSpec describes a playlist create-or-append request.
// When ContainerPID is zero the playlist manager creates a new container
// named Name; otherwise it appends to the existing container.
type PlaylistSpec struct {
	Name         string  `json:"name" validate:"required_without=ContainerPID"`
	ContainerPID int64   `json:"container_pid,omitempty"`
	ItemPIDs     []int64 `json:"item_pids"`
}

// MergeRequest is the unit of work the orchestrator consumes. DeviceID
// identifies the paired device for lock/metrics labeling; it carries no
// transport meaning inside the core.
type MergeRequest struct {
	DeviceID       string         `json:"device_id" validate:"required"`
	Items          []InputItem    `json:"items" validate:"dive"`
	Ringtones      []RingtoneItem `json:"ringtones,omitempty" validate:"dive"`
	Playlists      []PlaylistSpec `json:"playlists,omitempty" validate:"dive"`
	SkipDuplicates bool           `json:"skip_duplicates,omitempty"`
}

// MergeResult summarizes a completed merge for the driver/control surface.
type MergeResult struct {
	ItemsInserted    int   `json:"items_inserted"`
	RingtonesAdded   int   `json:"ringtones_added"`
	GhostsRemoved    int   `json:"ghosts_removed"`
	EntitiesCreated  int   `json:"entities_created"`
	PlaylistsWritten int   `json:"playlists_written"`
	SkippedItems     int   `json:"skipped_items"`
	DurationMillis   int64 `json:"duration_millis"`
}
