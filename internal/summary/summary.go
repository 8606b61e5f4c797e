package summary

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"semaphore/reports/internal/config"
	"semaphore/reports/internal/db"
	"semaphore/reports/internal/logger"
	"semaphore/reports/internal/metrics"
)

const (
	cachePrefix = "reports:summary:"
	cacheTTL    = 24 * time.Hour
	prompt      = "Summarize the following student form responses into a short, constructive progress report for the teacher. Keep concrete observations and avoid inventing facts.\n\n"
)

var ErrEmptyInput = errors.New("empty_input")

type Result struct {
	Text   string
	Source db.SummarySource
}

type Summarizer struct {
	apiURL     string
	apiKey     string
	model      string
	minInput   int
	sentences  int
	httpClient *http.Client
	cache      *redis.Client
}

func New(cfg config.Config, cache *redis.Client) *Summarizer {
	sentences := cfg.SummarySentence
	if sentences <= 0 {
		sentences = 3
	}
	timeout := cfg.SummaryTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Summarizer{
		apiURL:     strings.TrimRight(cfg.SummaryAPIURL, "/"),
		apiKey:     cfg.SummaryAPIKey,
		model:      cfg.SummaryModel,
		minInput:   cfg.SummaryMinInput,
		sentences:  sentences,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
	}
}

// Summarize returns a generated summary. It falls back to the local extract
// when generation is unavailable or the input is short.
func (s *Summarizer) Summarize(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyInput
	}
	if s.apiKey == "" || utf8.RuneCountInString(text) < s.minInput {
		return s.fallback(text), nil
	}

	key := cacheKey(s.model, text)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil && cached != "" {
			metrics.Summaries.WithLabelValues(string(db.SummarySourceAI)).Inc()
			return Result{Text: cached, Source: db.SummarySourceAI}, nil
		}
		if err != nil && err != redis.Nil {
			logger.Log.WithError(err).Warn("summary cache read failed")
		}
	}

	generated, err := s.generate(ctx, text)
	if err != nil {
		logger.Log.WithError(err).Warn("summary generation failed, using local extract")
		return s.fallback(text), nil
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, generated, cacheTTL).Err(); err != nil {
			logger.Log.WithError(err).Warn("summary cache write failed")
		}
	}
	metrics.Summaries.WithLabelValues(string(db.SummarySourceAI)).Inc()
	return Result{Text: generated, Source: db.SummarySourceAI}, nil
}

func (s *Summarizer) fallback(text string) Result {
	metrics.Summaries.WithLabelValues(string(db.SummarySourceFallback)).Inc()
	return Result{Text: Extract(text, s.sentences), Source: db.SummarySourceFallback}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *Summarizer) generate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt + text}}}}})
	if err != nil {
		return "", err
	}
	endpoint := s.apiURL + "/models/" + url.PathEscape(s.model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	// The key stays out of the URL, which transport errors echo.
	req.Header.Set("x-goog-api-key", s.apiKey)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode summary response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if body.Error != nil && body.Error.Message != "" {
			return "", fmt.Errorf("summary api status %d: %s", resp.StatusCode, body.Error.Message)
		}
		return "", fmt.Errorf("summary api status %d", resp.StatusCode)
	}
	var b strings.Builder
	for _, candidate := range body.Candidates {
		for _, p := range candidate.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("summary api returned no text")
	}
	return out, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return cachePrefix + hex.EncodeToString(sum[:])
}
