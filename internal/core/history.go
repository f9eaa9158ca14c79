package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity partitions history. Guest is used when no user is signed in.
type Identity string

// Guest is the anonymous identity.
const Guest Identity = "guest"

// NormalizeIdentity maps blank identities to Guest.
func NormalizeIdentity(id string) Identity {
	id = strings.TrimSpace(id)
	if id == "" {
		return Guest
	}
	return Identity(id)
}

// IsGuest returns true for the anonymous identity.
func (i Identity) IsGuest() bool {
	return i == "" || i == Guest
}

func (i Identity) String() string {
	if i == "" {
		return string(Guest)
	}
	return string(i)
}

// HistoryRecord is a single recently-played entry.
type HistoryRecord struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist"`
	Language string    `json:"language"`
	Emotion  *string   `json:"emotion"`
	Source   Source    `json:"source"`
	PlayedAt time.Time `json:"playedAt"`
	UserID   string    `json:"userId"`
}

// NewHistoryRecord builds a record for song played by identity at now.
// idFunc generates the synthetic id; nil uses a random UUID.
func NewHistoryRecord(song Song, identity Identity, now time.Time, idFunc func() string) HistoryRecord {
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	song = song.WithDefaults()
	return HistoryRecord{
		ID:       idFunc(),
		Filename: song.Filename,
		Title:    song.Title,
		Artist:   song.Artist,
		Language: song.Language,
		Emotion:  song.Emotion,
		Source:   song.Source,
		PlayedAt: now,
		UserID:   NormalizeIdentity(string(identity)).String(),
	}
}

// Song returns the song portion of the record.
func (r HistoryRecord) Song() Song {
	return Song{
		Filename: r.Filename,
		Title:    r.Title,
		Artist:   r.Artist,
		Language: r.Language,
		Emotion:  r.Emotion,
		Source:   r.Source,
	}
}

// Prepend removes any record with the same filename, puts rec at the front and
// truncates the result to limit entries. The input slice is not modified.
// Ordering is insertion order; PlayedAt is never used to reorder.
func Prepend(records []HistoryRecord, rec HistoryRecord, limit int) []HistoryRecord {
	out := make([]HistoryRecord, 0, len(records)+1)
	out = append(out, rec)
	for _, r := range records {
		if r.Filename == rec.Filename {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Without returns a copy of records with every entry for filename removed.
func Without(records []HistoryRecord, filename string) []HistoryRecord {
	out := make([]HistoryRecord, 0, len(records))
	for _, r := range records {
		if r.Filename != filename {
			out = append(out, r)
		}
	}
	return out
}

// Filenames returns the filenames in order.
func Filenames(records []HistoryRecord) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Filename
	}
	return names
}
