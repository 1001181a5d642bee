package models

import "time"

// RecordData is the payload the web client emits over the realtime channel:
// raw PCM encoded as base64 plus the capture format.
type RecordData struct {
	Audio      string  `json:"audio"`
	Duration   float64 `json:"duration"`
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sampleRate"`
	SampleSize int     `json:"sampleSize"`
}

// MatchCandidate is one recognized song, normalized from the recognition
// service's wire shape. Confidence is always in [0, 1]. Link fields are empty
// when the service didn't carry an identifier for that platform.
type MatchCandidate struct {
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	Album         string  `json:"album"`
	Confidence    float64 `json:"confidence"`
	Source        string  `json:"source"`
	SpotifyURL    string  `json:"spotify_url,omitempty"`
	YouTubeURL    string  `json:"youtube_url,omitempty"`
	AppleMusicURL string  `json:"apple_music_url,omitempty"`
}

// Hum is a stored identification attempt.
type Hum struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Username         string          `json:"username"`
	Title            string          `json:"title"`
	FileSize         int64           `json:"fileSize"`
	AudioFormat      string          `json:"audioFormat"`
	ProcessingStatus string          `json:"processingStatus"`
	IsPublic         bool            `json:"isPublic"`
	Likes            int             `json:"likes"`
	CommentsCount    int             `json:"commentsCount"`
	MatchedSong      *MatchCandidate `json:"matchedSong,omitempty"`
	MatchConfidence  float64         `json:"matchConfidence"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// UserProfile tracks per-user activity counters.
type UserProfile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	TotalHums       int    `json:"totalHums"`
	SongsIdentified int    `json:"songsIdentified"`
}
