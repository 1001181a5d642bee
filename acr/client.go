// Package acr speaks the ACRCloud identification wire protocol: a
// time-bound, HMAC-SHA1 signed multipart upload of a normalized audio
// sample, answered by a ranked list of candidate recordings.
package acr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// The canonical string is built from these constants regardless of how the
// outbound call is issued; the service verifies the signature against the
// literal method and URI below.
const (
	identifyMethod   = "POST"
	identifyURI      = "/v1/identify"
	dataType         = "audio"
	signatureVersion = "1"

	defaultTimeout = 30 * time.Second
)

// Config carries the recognition service credentials. Incomplete credentials
// are not an error: identification degrades to a skipped outcome.
type Config struct {
	Host         string
	AccessKey    string
	AccessSecret string
	Timeout      time.Duration
}

// Complete reports whether the config is sufficient to attempt a call.
func (c Config) Complete() bool {
	return c.Host != "" && c.AccessKey != "" && c.AccessSecret != ""
}

// Outcome distinguishes "tried and found nothing" from "never tried".
type Outcome string

const (
	// OutcomeMatched means the service returned at least one candidate.
	OutcomeMatched Outcome = "matched"
	// OutcomeNoMatch means the service answered but recognized nothing.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeSkipped means credentials were absent and no call was made.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means transport or service failure; Result.Err is set.
	OutcomeFailed Outcome = "failed"
)

// Result is what identification produces. Matches is never re-sorted: the
// service returns candidates best-first.
type Result struct {
	Outcome Outcome
	Matches []Match
	Err     error
}

// Client performs signed identification calls. It is stateless and safe for
// concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client from config, applying the default call timeout
// when none is set.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Identify uploads the sample at path and returns the normalized result.
// Recognition failure is soft: transport errors and non-2xx answers yield an
// empty, failed result rather than a hard error.
func (c *Client) Identify(ctx context.Context, samplePath string) Result {
	if !c.cfg.Complete() {
		return Result{Outcome: OutcomeSkipped}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := c.buildRequest(ctx, samplePath, timestamp)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("identify call failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Outcome: OutcomeFailed,
			Err:     fmt.Errorf("identify call returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("failed to read identify response: %w", err)}
	}

	matches, err := NormalizeResponse(body)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if len(matches) == 0 {
		return Result{Outcome: OutcomeNoMatch}
	}
	return Result{Outcome: OutcomeMatched, Matches: matches}
}

// buildRequest assembles the signed multipart upload for one sample.
func (c *Client) buildRequest(ctx context.Context, samplePath, timestamp string) (*http.Request, error) {
	sample, err := os.Open(samplePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample: %w", err)
	}
	defer sample.Close()

	stat, err := sample.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat sample: %w", err)
	}

	signature := Sign(c.cfg.AccessKey, c.cfg.AccessSecret, timestamp)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := map[string]string{
		"access_key":        c.cfg.AccessKey,
		"signature":         signature,
		"signature_version": signatureVersion,
		"timestamp":         timestamp,
		"data_type":         dataType,
		"sample_bytes":      strconv.FormatInt(stat.Size(), 10),
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	part, err := form.CreateFormFile("sample", filepath.Base(samplePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create sample part: %w", err)
	}
	if _, err := io.Copy(part, sample); err != nil {
		return nil, fmt.Errorf("failed to copy sample data: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s%s", strings.TrimSuffix(c.cfg.Host, "/"), identifyURI)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build identify request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req, nil
}

// Sign computes base64(HMAC-SHA1(secret, canonical)) where the canonical
// string is the newline-joined sequence method, URI, access key, data type,
// signature version, timestamp. Deterministic for fixed inputs.
func Sign(accessKey, accessSecret, timestamp string) string {
	return signCanonical(identifyMethod, identifyURI, accessKey, dataType, signatureVersion, timestamp, accessSecret)
}

func signCanonical(method, uri, accessKey, dataType, sigVersion, timestamp, secret string) string {
	canonical := strings.Join([]string{method, uri, accessKey, dataType, sigVersion, timestamp}, "\n")
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
