// Package extract turns raw report files into extraction records. The
// parsing provider sits behind a timeout and a rate limit; when it fails the
// service falls back to a best-effort plain-text record flagged as degraded.
// Extraction never fails past this boundary.
package extract

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ishan121028/RadiologyAI/internal/domain/report"
)

// DefaultTimeout bounds a single parse call when config leaves it zero.
const DefaultTimeout = 30 * time.Second

// Parser is the external parsing capability.
type Parser interface {
	Parse(ctx context.Context, content []byte, filename string) (report.Parsed, error)
}

// Cache stores parse results by content fingerprint.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (report.Parsed, bool)
	Put(ctx context.Context, fingerprint string, p report.Parsed)
}

// Service is the extraction adapter.
type Service struct {
	parser  Parser
	cache   Cache
	limiter *rate.Limiter
	timeout time.Duration
	minConf float64
	logger  *zap.Logger
}

// Config holds extraction settings.
type Config struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MinConfidence float64
}

// New creates an extraction service. cache may be nil.
func New(parser Parser, cache Cache, cfg Config, logger *zap.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Service{
		parser:  parser,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
		minConf: cfg.MinConfidence,
		logger:  logger,
	}
}

// Extract produces the extraction record for one observed file. It never
// returns an error: every failure path ends in a degraded record whose
// RawText is a best-effort decode of the input bytes.
func (s *Service) Extract(ctx context.Context, path, fingerprint string, content []byte, observedAt time.Time) report.Record {
	start := time.Now()

	parsed, degraded := s.parse(ctx, path, fingerprint, content)

	rec := report.Record{
		Identity:        report.Identity{Path: path, Fingerprint: fingerprint},
		PatientID:       parsed.PatientID,
		StudyType:       parsed.StudyType,
		StudyDate:       parsed.StudyDate,
		ClinicalHistory: parsed.ClinicalHistory,
		Technique:       parsed.Technique,
		Findings:        parsed.Findings,
		Impression:      parsed.Impression,
		Radiologist:     parsed.Radiologist,
		RawText:         parsed.RawText,
		Confidence:      parsed.Confidence,
		Degraded:        degraded,
		ObservedAt:      observedAt,
		ProcessedAt:     time.Now().UTC(),
		Duration:        time.Since(start),
	}
	if rec.RawText == "" {
		rec.RawText = bestEffortText(content)
	}
	return rec
}

// parse runs the provider with cache, rate limit and timeout. The second
// return value reports whether the result is a degraded fallback.
func (s *Service) parse(ctx context.Context, path, fingerprint string, content []byte) (report.Parsed, bool) {
	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, fingerprint); ok {
			return p, false
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn("Extraction rate wait aborted", zap.String("path", path), zap.Error(err))
		return fallback(content), true
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parsed, err := s.parser.Parse(callCtx, content, filename(path))
	if err != nil {
		s.logger.Warn("Structured extraction failed, falling back to raw text",
			zap.String("path", path), zap.Error(err))
		return fallback(content), true
	}

	if s.minConf > 0 && parsed.Confidence < s.minConf {
		s.logger.Warn("Extraction confidence below threshold",
			zap.String("path", path),
			zap.Float64("confidence", parsed.Confidence),
			zap.Float64("threshold", s.minConf))
		return fallback(content), true
	}

	if s.cache != nil {
		s.cache.Put(ctx, fingerprint, parsed)
	}
	return parsed, false
}

func fallback(content []byte) report.Parsed {
	return report.Parsed{RawText: bestEffortText(content)}
}

func filename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// bestEffortText decodes input bytes as plain text, dropping anything that
// is not valid UTF-8. Binary formats shrink to whatever readable fragments
// they contain, which still gives the classifier something to scan.
func bestEffortText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	var b strings.Builder
	b.Grow(len(content))
	for len(content) > 0 {
		r, size := utf8.DecodeRune(content)
		if r != utf8.RuneError || size > 1 {
			b.WriteRune(r)
		}
		content = content[size:]
	}
	return b.String()
}
