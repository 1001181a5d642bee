package acr

import (
	"encoding/json"
	"fmt"
	"strings"

	"hummify/models"
)

// Match is an alias kept for call-site readability inside this package.
type Match = models.MatchCandidate

const matchSource = "acrcloud_api"

// The service answers with one of two result shapes under metadata:
// "music" for exact-track matches (score 0-100) and "humming" for sung or
// hummed input (score already 0-1). Every field below is optional on the
// wire; absent structures decode to zero values and never panic.
type wireResponse struct {
	Status struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"status"`
	Metadata struct {
		Music   []wireMatch `json:"music"`
		Humming []wireMatch `json:"humming"`
	} `json:"metadata"`
}

type wireMatch struct {
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
	ExternalMetadata struct {
		Spotify struct {
			Track struct {
				ID string `json:"id"`
			} `json:"track"`
		} `json:"spotify"`
		YouTube struct {
			Vid string `json:"vid"`
		} `json:"youtube"`
		AppleMusic struct {
			URL string `json:"url"`
		} `json:"apple_music"`
	} `json:"external_metadata"`
}

// NormalizeResponse maps a raw response body onto the canonical candidate
// list. A non-zero status code yields an empty list, not an error; only an
// unparseable body is reported as a failure. Exact-track results take
// priority: the humming list is consulted only when the music list is absent
// or empty. Candidate order is preserved as returned.
func NormalizeResponse(body []byte) ([]Match, error) {
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unparseable identify response: %w", err)
	}

	if resp.Status.Code != 0 {
		return nil, nil
	}

	if len(resp.Metadata.Music) > 0 {
		return normalizeList(resp.Metadata.Music, false), nil
	}
	if len(resp.Metadata.Humming) > 0 {
		return normalizeList(resp.Metadata.Humming, true), nil
	}
	return nil, nil
}

func normalizeList(raw []wireMatch, humming bool) []Match {
	matches := make([]Match, 0, len(raw))
	for _, m := range raw {
		matches = append(matches, normalizeMatch(m, humming))
	}
	return matches
}

func normalizeMatch(raw wireMatch, humming bool) Match {
	confidence := raw.Score
	if !humming {
		confidence = raw.Score / 100.0
	}

	match := Match{
		Title:      raw.Title,
		Artist:     joinArtists(raw.Artists),
		Album:      raw.Album.Name,
		Confidence: confidence,
		Source:     matchSource,
	}
	if match.Title == "" {
		match.Title = "Unknown Title"
	}
	if match.Album == "" {
		match.Album = "Unknown Album"
	}

	if id := raw.ExternalMetadata.Spotify.Track.ID; id != "" {
		match.SpotifyURL = "https://open.spotify.com/track/" + id
	}
	if vid := raw.ExternalMetadata.YouTube.Vid; vid != "" {
		match.YouTubeURL = "https://www.youtube.com/watch?v=" + vid
	}
	if url := raw.ExternalMetadata.AppleMusic.URL; url != "" {
		match.AppleMusicURL = url
	}
	return match
}

func joinArtists(artists []struct {
	Name string `json:"name"`
}) string {
	if len(artists) == 0 {
		return "Unknown Artist"
	}
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}
