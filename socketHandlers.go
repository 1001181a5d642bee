package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"hummify/acr"
	"hummify/models"
	"hummify/sound"
	"hummify/utils"
	"hummify/wav"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

// socketController handles the live identification channel: the web client
// records a short clip and streams it as base64 PCM, we answer with the
// normalized match list.
type socketController struct {
	normalizer *sound.Normalizer
	matcher    *acr.Client
}

func newSocketController(normalizer *sound.Normalizer, matcher *acr.Client) *socketController {
	return &socketController{normalizer: normalizer, matcher: matcher}
}

type liveMatchesPayload struct {
	Outcome string                  `json:"outcome"`
	Matches []models.MatchCandidate `json:"matches"`
}

func (c *socketController) handleNewRecording(socket socketio.Conn, recordData string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if recordData == "" {
		logger.ErrorContext(ctx, "no data received in newRecording event")
		socket.Emit("analysisError", map[string]string{"message": "no audio data received"})
		return
	}

	var recData models.RecordData
	if err := json.Unmarshal([]byte(recordData), &recData); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse record payload", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid audio payload"})
		return
	}

	logger.InfoContext(ctx, "received recording",
		slog.String("socketID", socket.ID()),
		slog.Int("sampleRate", recData.SampleRate),
		slog.Int("channels", recData.Channels),
		slog.Float64("duration", recData.Duration),
	)

	clip, err := clipFromRecordData(recData)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to decode recording", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "unable to decode audio"})
		return
	}

	started := time.Now()

	samplePath, err := c.normalizer.ExportWav(c.normalizer.ForMatch(clip))
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to export sample", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "audio processing failed"})
		return
	}
	defer os.Remove(samplePath)

	result := c.matcher.Identify(ctx, samplePath)
	if result.Outcome == acr.OutcomeFailed {
		logger.WarnContext(ctx, "recognition failed",
			slog.String("socketID", socket.ID()),
			slog.Any("error", result.Err),
		)
	}

	logger.InfoContext(ctx, "identification complete",
		slog.String("socketID", socket.ID()),
		slog.String("outcome", string(result.Outcome)),
		slog.Int("matchCount", len(result.Matches)),
		slog.Float64("latency_ms", time.Since(started).Seconds()*1000),
	)

	matches := result.Matches
	if matches == nil {
		matches = []models.MatchCandidate{}
	}
	socket.Emit("matches", liveMatchesPayload{
		Outcome: string(result.Outcome),
		Matches: matches,
	})
}

// clipFromRecordData rebuilds a Clip from the client payload: base64-encoded
// 16-bit little-endian PCM plus the capture format.
func clipFromRecordData(recData models.RecordData) (*sound.Clip, error) {
	raw, err := base64.StdEncoding.DecodeString(recData.Audio)
	if err != nil {
		return nil, err
	}
	samples, err := wav.SamplesFromPCM16(raw)
	if err != nil {
		return nil, err
	}
	channels := recData.Channels
	if channels <= 0 {
		channels = 1
	}
	sampleRate := recData.SampleRate
	if sampleRate <= 0 {
		sampleRate = sound.MatchSampleRate
	}
	return &sound.Clip{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}
