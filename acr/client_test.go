package acr

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSignMatchesReferenceHMAC(t *testing.T) {
	t.Parallel()

	accessKey := "test-key"
	secret := "test-secret"
	timestamp := "1700000000"

	canonical := strings.Join([]string{
		"POST", "/v1/identify", accessKey, "audio", "1", timestamp,
	}, "\n")
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(canonical))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := Sign(accessKey, secret, timestamp); got != want {
		t.Fatalf("Sign = %q, want %q", got, want)
	}
	if again := Sign(accessKey, secret, timestamp); again != want {
		t.Fatalf("Sign is not deterministic: %q then %q", want, again)
	}
}

func TestSignatureDependsOnEveryCanonicalField(t *testing.T) {
	t.Parallel()

	base := signCanonical("POST", "/v1/identify", "key", "audio", "1", "1700000000", "secret")
	variants := map[string]string{
		"method":    signCanonical("GET", "/v1/identify", "key", "audio", "1", "1700000000", "secret"),
		"uri":       signCanonical("POST", "/v2/identify", "key", "audio", "1", "1700000000", "secret"),
		"accessKey": signCanonical("POST", "/v1/identify", "other", "audio", "1", "1700000000", "secret"),
		"dataType":  signCanonical("POST", "/v1/identify", "key", "fingerprint", "1", "1700000000", "secret"),
		"version":   signCanonical("POST", "/v1/identify", "key", "audio", "2", "1700000000", "secret"),
		"timestamp": signCanonical("POST", "/v1/identify", "key", "audio", "1", "1700000001", "secret"),
		"secret":    signCanonical("POST", "/v1/identify", "key", "audio", "1", "1700000000", "other"),
	}
	for field, sig := range variants {
		if sig == base {
			t.Errorf("changing %s did not change the signature", field)
		}
	}
}

func TestIdentifySkipsWithoutCredentials(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{})
	result := client.Identify(context.Background(), "does-not-exist.wav")
	if result.Outcome != OutcomeSkipped {
		t.Fatalf("outcome = %q, want %q", result.Outcome, OutcomeSkipped)
	}
	if result.Err != nil || len(result.Matches) != 0 {
		t.Fatalf("skipped result should be empty, got %+v", result)
	}
}

func TestIdentifyFailsSoftOnTransportError(t *testing.T) {
	t.Parallel()

	sample := writeSample(t, []byte("not really audio"))
	client := NewClient(Config{
		Host:         "127.0.0.1:1",
		AccessKey:    "key",
		AccessSecret: "secret",
		Timeout:      500 * time.Millisecond,
	})

	result := client.Identify(context.Background(), sample)
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %q, want %q", result.Outcome, OutcomeFailed)
	}
	if result.Err == nil {
		t.Fatal("failed result should carry the transport error")
	}
}

func TestBuildRequestForm(t *testing.T) {
	t.Parallel()

	payload := []byte("RIFF fake sample payload")
	sample := writeSample(t, payload)

	client := NewClient(Config{
		Host:         "identify-test.example.com",
		AccessKey:    "key",
		AccessSecret: "secret",
	})

	req, err := client.buildRequest(context.Background(), sample, "1700000000")
	if err != nil {
		t.Fatalf("buildRequest returned error: %v", err)
	}
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if req.URL.String() != "https://identify-test.example.com/v1/identify" {
		t.Errorf("url = %s", req.URL)
	}

	fields, fileName, fileBody := parseIdentifyForm(t, req)
	wantFields := map[string]string{
		"access_key":        "key",
		"signature":         Sign("key", "secret", "1700000000"),
		"signature_version": "1",
		"timestamp":         "1700000000",
		"data_type":         "audio",
		"sample_bytes":      "24",
	}
	for name, want := range wantFields {
		if fields[name] != want {
			t.Errorf("field %s = %q, want %q", name, fields[name], want)
		}
	}
	if fileName != filepath.Base(sample) {
		t.Errorf("sample file name = %q, want %q", fileName, filepath.Base(sample))
	}
	if string(fileBody) != string(payload) {
		t.Errorf("sample body does not round-trip")
	}
}

func TestIdentifyAgainstStubService(t *testing.T) {
	t.Parallel()

	response := map[string]any{
		"status": map[string]any{"code": 0, "msg": "Success"},
		"metadata": map[string]any{
			"music": []map[string]any{
				{
					"title":   "Stub Song",
					"score":   90,
					"artists": []map[string]any{{"name": "Stub Artist"}},
					"album":   map[string]any{"name": "Stub Album"},
				},
			},
		},
	}

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/identify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		if r.FormValue("access_key") != "key" {
			t.Errorf("access_key = %q", r.FormValue("access_key"))
		}
		json.NewEncoder(w).Encode(response)
	}))
	defer srv.Close()

	client := NewClient(Config{
		Host:         strings.TrimPrefix(srv.URL, "https://"),
		AccessKey:    "key",
		AccessSecret: "secret",
	})
	client.http = srv.Client()

	sample := writeSample(t, []byte("sample payload"))
	result := client.Identify(context.Background(), sample)
	if result.Outcome != OutcomeMatched {
		t.Fatalf("outcome = %q (err %v), want %q", result.Outcome, result.Err, OutcomeMatched)
	}
	if len(result.Matches) != 1 || result.Matches[0].Title != "Stub Song" {
		t.Fatalf("unexpected matches: %+v", result.Matches)
	}
	if result.Matches[0].Confidence != 0.9 {
		t.Fatalf("confidence = %f, want 0.9", result.Matches[0].Confidence)
	}
}

func TestIdentifyMapsServerErrorToFailed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{
		Host:         strings.TrimPrefix(srv.URL, "https://"),
		AccessKey:    "key",
		AccessSecret: "secret",
	})
	client.http = srv.Client()

	result := client.Identify(context.Background(), writeSample(t, []byte("x")))
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %q, want %q", result.Outcome, OutcomeFailed)
	}
}

func writeSample(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write sample: %v", err)
	}
	return path
}

func parseIdentifyForm(t *testing.T, req *http.Request) (fields map[string]string, fileName string, fileBody []byte) {
	t.Helper()

	_, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("failed to parse content type: %v", err)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("failed to read request body: %v", err)
	}

	fields = make(map[string]string)
	reader := multipart.NewReader(strings.NewReader(string(body)), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read form part: %v", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("failed to read part body: %v", err)
		}
		if part.FormName() == "sample" {
			fileName = part.FileName()
			fileBody = data
			continue
		}
		fields[part.FormName()] = string(data)
	}
	return fields, fileName, fileBody
}
