// Package recognize implements the recognition client: it builds the
// Shazam discovery request for an encoded Signature, posts it, and
// classifies the reply into a Match, NoMatch, or a retryable/fatal
// Failure.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tunewire/apperr"
	"tunewire/shazam"
)

const (
	endpointTemplate = "https://amp.shazam.com/discovery/v5/en/US/iphone/-/tag/%s/%s" +
		"?sync=true&webv3=true&sampling=true&connected=&shazamapiversion=v3&sharehub=true&hubv=5&video=v3"
	requestTimeout = 15 * time.Second
)

// userAgents is a pool of recent mobile iPhone Safari strings, rotated per
// request so the discovery endpoint doesn't see one fingerprint-able
// client across an entire session. Immutable process-wide, shared by
// read-only reference.
var userAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_3_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_7_8 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.3 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 15_7_9 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.6 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
}

// Result is the outcome of a single recognition attempt.
type Result struct {
	Found        bool
	Title        string
	Artist       string
	Album        string
	ShareURL     string
	CoverArtURL  string
	LyricsURL    string
	SignatureURI string
	RetryAfter   time.Duration
	Raw          json.RawMessage
}

// Client posts encoded signatures to the Shazam discovery endpoint.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	timezone   string
}

// NewClient returns a Client that throttles itself to at most one request
// every interval. In practice only one request is ever in flight, since
// the Recognizer stage calls Identify from a single goroutine.
func NewClient(timezone string, interval time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		timezone:   timezone,
	}
}

// SetHTTPClient overrides the HTTP client used for requests, letting
// callers point Identify at a test server or a custom transport.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

type requestBody struct {
	Timezone    string           `json:"timezone"`
	Signature   signaturePayload `json:"signature"`
	Timestamp   int64            `json:"timestamp"`
	Context     struct{}         `json:"context"`
	Geolocation struct{}         `json:"geolocation"`
}

type signaturePayload struct {
	URI      string `json:"uri"`
	SampleMS int64  `json:"samplems"`
}

type apiResponse struct {
	Matches []struct {
		ID string `json:"id"`
	} `json:"matches"`
	RetryMS int64 `json:"retryms"`
	Track   struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
		Share    struct {
			Href string `json:"href"`
		} `json:"share"`
		Images struct {
			CoverArt string `json:"coverart"`
		} `json:"images"`
		Hub struct {
			Actions []struct {
				Name string `json:"name"`
				URI  string `json:"uri"`
			} `json:"actions"`
		} `json:"hub"`
		Sections []struct {
			Type     string `json:"type"`
			Metadata []struct {
				Title string `json:"title"`
				Text  string `json:"text"`
			} `json:"metadata"`
		} `json:"sections"`
	} `json:"track"`
}

// Identify builds and posts the discovery request for sig. The caller's
// context bounds the whole call, including the self-imposed rate-limit
// wait.
func (c *Client) Identify(ctx context.Context, sig shazam.Signature) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, apperr.New(apperr.NetworkTimeout, err)
	}

	signatureURI := sig.EncodeURI()
	body := requestBody{
		Timezone: c.timezone,
		Signature: signaturePayload{
			URI:      signatureURI,
			SampleMS: int64(sig.NumSamples) * 1000 / int64(sig.SampleRateHz),
		},
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, apperr.New(apperr.MalformedResponse, err)
	}

	url := fmt.Sprintf(endpointTemplate, strings.ToUpper(uuid.NewString()), uuid.NewString())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, apperr.New(apperr.MalformedResponse, err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Language", "en_US")
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Result{}, apperr.New(apperr.NetworkTimeout, err)
		}
		return Result{}, apperr.New(apperr.NetworkTimeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, apperr.New(apperr.MalformedResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, apperr.HTTPStatusError(resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, apperr.New(apperr.MalformedResponse, err)
	}

	if len(parsed.Matches) == 0 {
		return Result{
			Found:        false,
			SignatureURI: signatureURI,
			RetryAfter:   time.Duration(parsed.RetryMS) * time.Millisecond,
			Raw:          raw,
		}, nil
	}

	album := ""
	for _, section := range parsed.Track.Sections {
		for _, meta := range section.Metadata {
			if meta.Title == "Album" {
				album = meta.Text
			}
		}
	}
	lyricsURL := ""
	for _, action := range parsed.Track.Hub.Actions {
		if action.Name == "lyrics" {
			lyricsURL = action.URI
		}
	}

	return Result{
		Found:        true,
		Title:        parsed.Track.Title,
		Artist:       parsed.Track.Subtitle,
		Album:        album,
		ShareURL:     parsed.Track.Share.Href,
		CoverArtURL:  parsed.Track.Images.CoverArt,
		LyricsURL:    lyricsURL,
		SignatureURI: signatureURI,
		Raw:          raw,
	}, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if asNetError(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func asNetError(err error, target *net.Error) bool {
	for err != nil {
		if e, ok := err.(net.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
