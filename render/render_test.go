package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tunewire/recognize"
)

func TestJSONWritesOneLinePerTrack(t *testing.T) {
	var buf bytes.Buffer
	at := time.Unix(1700000000, 0).UTC()
	track := FromResult(recognize.Result{Found: true, Title: "A", Artist: "B"}, at)

	require.NoError(t, JSON(&buf, track))
	require.NoError(t, JSON(&buf, track))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"title":"A"`)
}

func TestCSVWriterEmitsHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)
	at := time.Unix(1700000000, 0).UTC()

	require.NoError(t, w.Write(FromResult(recognize.Result{Title: "A", Artist: "B"}, at)))
	require.NoError(t, w.Write(FromResult(recognize.Result{Title: "C", Artist: "D"}, at)))

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "at,title,artist,album,share_url,cover_art_url,lyrics_url,signature_uri"))
	require.Contains(t, out, "A,B")
	require.Contains(t, out, "C,D")
}
