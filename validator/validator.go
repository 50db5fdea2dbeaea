// Package validator scans memory content and search queries for
// injection attempts, sensitive data and system-command payloads before
// anything reaches storage.
package validator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/config"
	"github.com/tbh-ai/secure-agent-memory/model"
)

// Result is a validation verdict.
type Result struct {
	IsSecure    bool     `json:"is_secure"`
	Method      string   `json:"method"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// DeepValidator is the pluggable multi-layer validator boundary. When a
// deep validator is registered its verdict is authoritative; absence
// degrades gracefully to pattern-only validation.
type DeepValidator interface {
	Validate(ctx context.Context, content string, vctx map[string]string) (Result, error)
}

// Validator runs the cheapest-first validation pipeline.
type Validator struct {
	limits  config.LimitsConfig
	deep    DeepValidator
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a validator. deep may be nil.
func New(limits config.LimitsConfig, deep DeepValidator, timeout time.Duration, log zerolog.Logger) *Validator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Validator{limits: limits, deep: deep, timeout: timeout, log: log}
}

// Validate checks content destined for storage. Escalated priorities run
// the same pipeline but hand higher-confidence rejections to the caller.
func (v *Validator) Validate(ctx context.Context, content string, t model.MemoryType, priority model.Priority, vctx map[string]string) Result {
	// Stage 1: structural pre-validation.
	if r := v.preValidate(content, t); !r.IsSecure {
		return r
	}

	// Stage 2: pattern-based threat scan.
	if category, pattern := scanThreats(content); category != "" {
		v.log.Warn().Str("category", category).Str("memory_type", string(t)).Msg("content rejected by threat scan")
		return Result{
			IsSecure:   false,
			Method:     "pattern",
			Confidence: 0.9,
			Reason:     fmt.Sprintf("%s pattern detected: %s", category, pattern),
			Suggestions: []string{
				"remove the flagged fragment",
				"store a description of the behavior instead of the payload",
			},
		}
	}

	// Stage 3: deep validation when available; its verdict wins.
	if v.deep != nil {
		dctx, cancel := context.WithTimeout(ctx, v.timeout)
		defer cancel()
		r, err := v.deep.Validate(dctx, content, vctx)
		if err != nil {
			// Deep validation is best-effort; the basic verdict stands.
			v.log.Warn().Err(err).Msg("deep validation unavailable")
		} else {
			r.Method = "deep"
			return r
		}
	}

	confidence := 0.75
	if priority.Rank() >= model.PriorityHigh.Rank() {
		confidence = 0.7
	}
	return Result{IsSecure: true, Method: "pattern", Confidence: confidence}
}

// preValidate rejects structurally unacceptable content.
func (v *Validator) preValidate(content string, t model.MemoryType) Result {
	max := v.limits.MaxContentSize(string(t))
	if len(content) > max {
		return Result{
			IsSecure:    false,
			Method:      "pre",
			Confidence:  1.0,
			Reason:      fmt.Sprintf("content exceeds %d byte limit for %s memory", max, t),
			Suggestions: []string{"split the content across multiple entries"},
		}
	}

	for _, r := range content {
		if r == 0 {
			return Result{IsSecure: false, Method: "pre", Confidence: 1.0, Reason: "content contains null bytes"}
		}
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return Result{
				IsSecure:   false,
				Method:     "pre",
				Confidence: 1.0,
				Reason:     fmt.Sprintf("content contains control character 0x%02x", r),
			}
		}
	}

	// Pattern memory describes behavior; it must not carry executable code.
	if t == model.TypePattern {
		if marker := scanCodeMarkers(content); marker != "" {
			return Result{
				IsSecure:    false,
				Method:      "pre",
				Confidence:  0.95,
				Reason:      fmt.Sprintf("pattern memory contains executable code marker %q", marker),
				Suggestions: []string{"describe the behavior in prose rather than code"},
			}
		}
	}

	return Result{IsSecure: true, Method: "pre", Confidence: 1.0}
}

// ValidateQuery checks search text with injection patterns tuned for
// query syntax. A query is never trusted as safe content.
func (v *Validator) ValidateQuery(query string) Result {
	if len(query) > 1024 {
		return Result{IsSecure: false, Method: "query", Confidence: 1.0, Reason: "query too long"}
	}
	lower := strings.ToLower(query)
	for _, p := range queryInjectionPatterns {
		if p.re.MatchString(lower) {
			return Result{
				IsSecure:   false,
				Method:     "query",
				Confidence: 0.9,
				Reason:     fmt.Sprintf("query injection pattern detected: %s", p.name),
			}
		}
	}
	return Result{IsSecure: true, Method: "query", Confidence: 0.9}
}
