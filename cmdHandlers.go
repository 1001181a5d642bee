package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hummify/acr"
	"hummify/db"
	"hummify/effects"
	"hummify/models"
	"hummify/sound"
	"hummify/utils"
	"hummify/wav"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

type identifyResponse struct {
	HumID            string                  `json:"hum_id"`
	Title            string                  `json:"title"`
	Matches          []models.MatchCandidate `json:"matches"`
	ProcessingStatus string                  `json:"processing_status"`
}

type remixResponse struct {
	Message    string `json:"message"`
	RemixedURL string `json:"remixed_url"`
}

const (
	uploadsDir        = "static/uploads"
	statusCompleted   = "completed"
	statusNoMatch     = "no_match"
	defaultMaxSizeMB  = 10
	anonymousUserID   = "anonymous"
	anonymousUsername = "Anonymous"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// corsPreflight writes the shared CORS headers and reports whether the
// request was an OPTIONS preflight already answered.
func corsPreflight(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Credentials", "true")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// newIdentifyHandler serves POST /api/hums/upload-and-match: normalize the
// upload, ask the recognition service for candidates, persist the hum record,
// and bump the user's counters.
func newIdentifyHandler(normalizer *sound.Normalizer, matcher *acr.Client, store db.Client, maxUploadBytes int64) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if corsPreflight(w, r, "POST") {
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		title := strings.TrimSpace(r.FormValue("title"))
		if title == "" {
			writeJSONError(w, http.StatusBadRequest, "title is required")
			return
		}

		userID := strings.TrimSpace(r.FormValue("user_id"))
		if userID == "" {
			userID = anonymousUserID
		}
		username := strings.TrimSpace(r.FormValue("username"))
		if username == "" {
			username = anonymousUsername
		}

		file, _, err := r.FormFile("audio_file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "audio_file is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			logger.ErrorContext(ctx, "failed to read upload", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadRequest, "unable to read audio upload")
			return
		}

		clip, err := normalizer.Decode(ctx, content)
		if err != nil {
			var decodeErr *sound.DecodeError
			if errors.As(err, &decodeErr) {
				writeJSONError(w, http.StatusBadRequest, "unable to decode audio")
				return
			}
			logger.ErrorContext(ctx, "decode failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "audio processing failed")
			return
		}

		matchClip := normalizer.ForMatch(clip)
		samplePath, err := normalizer.ExportWav(matchClip)
		if err != nil {
			logger.ErrorContext(ctx, "failed to export sample", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "audio processing failed")
			return
		}
		defer os.Remove(samplePath)

		// Diagnostic descriptors; no ranking decision is made from these.
		if features, ferr := sound.ExtractFeatures(normalizer.ForAnalysis(clip)); ferr == nil {
			logger.DebugContext(ctx, "extracted audio features",
				slog.Float64("spectralCentroidMean", features.SpectralCentroidMean),
				slog.Float64("rmsMean", features.RMSMean),
				slog.Float64("zcrMean", features.ZCRMean),
			)
		}

		result := matcher.Identify(ctx, samplePath)
		switch result.Outcome {
		case acr.OutcomeSkipped:
			logger.WarnContext(ctx, "recognition skipped: credentials not configured")
		case acr.OutcomeFailed:
			logger.WarnContext(ctx, "recognition failed", slog.Any("error", result.Err))
		}

		var fileSize int64
		if stat, serr := os.Stat(samplePath); serr == nil {
			fileSize = stat.Size()
		}

		hum := &models.Hum{
			UserID:           userID,
			Username:         username,
			Title:            title,
			FileSize:         fileSize,
			AudioFormat:      "wav",
			ProcessingStatus: statusNoMatch,
			IsPublic:         true,
		}

		var best *models.MatchCandidate
		if len(result.Matches) > 0 {
			best = &result.Matches[0]
			hum.ProcessingStatus = statusCompleted
			hum.MatchedSong = best
			hum.MatchConfidence = best.Confidence
		}

		profile, err := store.GetUserProfile(userID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load user profile", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to store hum")
			return
		}
		if profile == nil {
			if err := store.CreateOrUpdateUser(models.UserProfile{ID: userID, Name: username}); err != nil {
				logger.ErrorContext(ctx, "failed to create user profile", slog.Any("error", xerrors.New(err)))
				writeJSONError(w, http.StatusInternalServerError, "failed to store hum")
				return
			}
		}

		humID, err := store.CreateHum(hum)
		if err != nil {
			logger.ErrorContext(ctx, "failed to store hum", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to store hum")
			return
		}

		// Counters follow the record so a storage fault can't leave an
		// incremented counter without a hum behind it.
		if err := store.IncrementUserStat(userID, db.StatTotalHums); err != nil {
			logger.WarnContext(ctx, "failed to increment totalHums", slog.Any("error", err))
		}
		if best != nil {
			if err := store.IncrementUserStat(userID, db.StatSongsIdentified); err != nil {
				logger.WarnContext(ctx, "failed to increment songsIdentified", slog.Any("error", err))
			}
		}

		writeJSON(w, http.StatusOK, identifyResponse{
			HumID:            humID,
			Title:            title,
			Matches:          result.Matches,
			ProcessingStatus: hum.ProcessingStatus,
		})
	}
}

// newRemixHandler serves POST /api/hums/remix: apply the requested effect
// chain and return a URL to the rendered MP3 under the static file area.
func newRemixHandler(normalizer *sound.Normalizer, converter *wav.Converter, maxUploadBytes int64) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if corsPreflight(w, r, "POST") {
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		spec, err := parseChainSpec(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Parameter domain errors come back before any audio is read.
		if err := spec.Validate(); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		file, _, err := r.FormFile("audio_file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "audio_file is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "unable to read audio upload")
			return
		}

		// Remix accepts the source layout as-is; no match normalization.
		clip, err := normalizer.Decode(ctx, content)
		if err != nil {
			var decodeErr *sound.DecodeError
			if errors.As(err, &decodeErr) {
				writeJSONError(w, http.StatusBadRequest, "unable to decode audio")
				return
			}
			logger.ErrorContext(ctx, "decode failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "audio processing failed")
			return
		}

		remixed, err := effects.Apply(clip, spec)
		if err != nil {
			var paramErr *effects.InvalidParameterError
			if errors.As(err, &paramErr) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.ErrorContext(ctx, "effect chain failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "remix failed")
			return
		}

		wavPath, err := normalizer.ExportWav(remixed)
		if err != nil {
			logger.ErrorContext(ctx, "failed to export remix", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "remix failed")
			return
		}
		defer os.Remove(wavPath)

		if err := utils.CreateFolder(uploadsDir); err != nil {
			logger.ErrorContext(ctx, "failed to create uploads dir", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "remix failed")
			return
		}

		fileName := fmt.Sprintf("remix_%s.mp3", utils.GenerateUniqueID())
		mp3Path := filepath.Join(uploadsDir, fileName)
		if err := converter.EncodeMP3(ctx, wavPath, mp3Path, "128k"); err != nil {
			logger.ErrorContext(ctx, "mp3 encoding failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "remix failed")
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		writeJSON(w, http.StatusOK, remixResponse{
			Message:    "Remix successful!",
			RemixedURL: fmt.Sprintf("%s://%s/static/uploads/%s", scheme, r.Host, fileName),
		})
	}
}

func parseChainSpec(r *http.Request) (effects.ChainSpec, error) {
	spec := effects.DefaultChainSpec()

	if v := strings.TrimSpace(r.FormValue("pitch")); v != "" {
		pitch, err := strconv.Atoi(v)
		if err != nil {
			return spec, fmt.Errorf("invalid pitch: must be an integer semitone offset")
		}
		spec.Pitch = pitch
	}
	if v := strings.TrimSpace(r.FormValue("speed")); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return spec, fmt.Errorf("invalid speed: must be a number")
		}
		spec.Speed = speed
	}
	if v := strings.TrimSpace(r.FormValue("reverse")); v != "" {
		spec.Reverse = strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(r.FormValue("echo")); v != "" {
		echo, err := strconv.Atoi(v)
		if err != nil {
			return spec, fmt.Errorf("invalid echo: must be an integer intensity")
		}
		spec.Echo = echo
	}
	if v := strings.TrimSpace(r.FormValue("reverb")); v != "" {
		reverb, err := strconv.Atoi(v)
		if err != nil {
			return spec, fmt.Errorf("invalid reverb: must be an integer intensity")
		}
		spec.Reverb = reverb
	}
	return spec, nil
}

func newFeedHandler(store db.Client) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if corsPreflight(w, r, "GET") {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		hums, err := store.ListPublicHums(limit)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load feed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load feed")
			return
		}
		if hums == nil {
			hums = []models.Hum{}
		}

		writeJSON(w, http.StatusOK, hums)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func serve(protocol, port string) {
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	converter := wav.NewConverter(utils.GetEnv("FFMPEG_PATH", "ffmpeg"))
	normalizer := sound.NewNormalizer(converter, "tmp")

	matcher := acr.NewClient(acr.Config{
		Host:         utils.GetEnv("ACRCLOUD_HOST", ""),
		AccessKey:    utils.GetEnv("ACRCLOUD_ACCESS_KEY", ""),
		AccessSecret: utils.GetEnv("ACRCLOUD_ACCESS_SECRET", ""),
	})

	maxSizeMB, err := strconv.Atoi(utils.GetEnv("MAX_AUDIO_SIZE_MB", strconv.Itoa(defaultMaxSizeMB)))
	if err != nil || maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	maxUploadBytes := int64(maxSizeMB) << 20

	store, err := db.NewClient()
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	controller := newSocketController(normalizer, matcher)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		return nil
	})

	server.OnEvent("/", "newRecording", func(socket socketio.Conn, msg string) {
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("panic in handleNewRecording for socket %s: %v\n", socket.ID(), rec)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleNewRecording(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("socket error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/hums/upload-and-match", newIdentifyHandler(normalizer, matcher, store, maxUploadBytes))
	mux.HandleFunc("/api/hums/remix", newRemixHandler(normalizer, converter, maxUploadBytes))
	mux.HandleFunc("/api/hums/feed", newFeedHandler(store))
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	serveHTTP(strings.ToLower(protocol) == "https", port, mux)
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
