// Package render formats recognition outcomes for non-interactive CLI
// output. JSON and CSV are both stdlib-only: encoding/json and
// encoding/csv already cover the full shape this output needs, one
// record at a time, without pulling in a third-party encoder for either
// format.
package render

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"tunewire/recognize"
)

// Track is the flattened, renderer-facing view of a SongRecognized event.
type Track struct {
	At           time.Time `json:"at"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album,omitempty"`
	ShareURL     string    `json:"share_url,omitempty"`
	CoverArtURL  string    `json:"cover_art_url,omitempty"`
	LyricsURL    string    `json:"lyrics_url,omitempty"`
	SignatureURI string    `json:"signature_uri,omitempty"`
}

// FromResult converts a recognize.Result into a Track at the given time.
func FromResult(r recognize.Result, at time.Time) Track {
	return Track{
		At:           at,
		Title:        r.Title,
		Artist:       r.Artist,
		Album:        r.Album,
		ShareURL:     r.ShareURL,
		CoverArtURL:  r.CoverArtURL,
		LyricsURL:    r.LyricsURL,
		SignatureURI: r.SignatureURI,
	}
}

// JSON writes a single track as a JSON object, one line at a time, so a
// long-running `listen --json` session produces valid, streamable
// newline-delimited JSON.
func JSON(w io.Writer, t Track) error {
	enc := json.NewEncoder(w)
	return enc.Encode(t)
}

// CSVWriter wraps encoding/csv, writing a fixed header row once before
// the first track and plain rows after.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (c *CSVWriter) Write(t Track) error {
	if !c.wroteHeader {
		if err := c.w.Write([]string{"at", "title", "artist", "album", "share_url", "cover_art_url", "lyrics_url", "signature_uri"}); err != nil {
			return err
		}
		c.wroteHeader = true
	}
	err := c.w.Write([]string{
		strconv.FormatInt(t.At.Unix(), 10),
		t.Title,
		t.Artist,
		t.Album,
		t.ShareURL,
		t.CoverArtURL,
		t.LyricsURL,
		t.SignatureURI,
	})
	if err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}
