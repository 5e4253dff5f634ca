// Package stub provides a small stand-in guardrail service for local
// development and end-to-end tests. It speaks the same wire contract as the
// real service (GET /health and POST /validate with bearer-token auth) and
// reports violations from a deterministic pattern rule set instead of a
// real rule engine.
package stub

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/guardrail/internal/validate"
)

// Rule is a single line-oriented pattern check.
type Rule struct {
	ID       string
	Severity string
	Message  string
	Pattern  *regexp.Regexp

	// FixLabel, when non-empty, attaches a fix that deletes the matched
	// span.
	FixLabel string
}

// DefaultRules returns the built-in rule set: enough variety to exercise
// every severity and the fix path.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "style.trailing-whitespace",
			Severity: "warning",
			Message:  "trailing whitespace",
			Pattern:  regexp.MustCompile(`[ \t]+$`),
			FixLabel: "Remove trailing whitespace",
		},
		{
			ID:       "style.todo",
			Severity: "info",
			Message:  "TODO left in source",
			Pattern:  regexp.MustCompile(`TODO`),
		},
		{
			ID:       "style.merge-conflict",
			Severity: "error",
			Message:  "merge conflict marker",
			Pattern:  regexp.MustCompile(`^<{7} |^={7}$|^>{7} `),
		},
	}
}

// Server is the stub service.
type Server struct {
	apiKey      string
	projectSlug string
	rules       []Rule
}

// Option configures the stub server.
type Option func(*Server)

// WithAPIKey requires the given bearer token on every request.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithProjectSlug rejects requests scoped to any other project.
func WithProjectSlug(slug string) Option {
	return func(s *Server) { s.projectSlug = slug }
}

// WithRules replaces the default rule set.
func WithRules(rules []Rule) Option {
	return func(s *Server) { s.rules = rules }
}

// New creates a stub server.
func New(opts ...Option) *Server {
	s := &Server{rules: DefaultRules()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler for the stub service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.auth)

	r.Get("/health", s.handleHealth)
	r.Post("/validate", s.handleValidate)
	return r
}

// auth enforces the bearer token when one is configured.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token != s.apiKey {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var payload validate.ValidatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "resourceId is required")
		return
	}
	if s.projectSlug != "" && payload.ProjectSlug != s.projectSlug {
		writeError(w, http.StatusBadRequest, "unknown project slug")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"violations": s.check(payload.Content),
	})
}

// wire mirrors of the service response shape.
type wirePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type wireRange struct {
	Start wirePosition `json:"start"`
	End   wirePosition `json:"end"`
}

type wireEdit struct {
	Range   wireRange `json:"range"`
	NewText string    `json:"newText"`
}

type wireFix struct {
	Label string     `json:"label"`
	Edits []wireEdit `json:"edits"`
}

type wireViolation struct {
	RuleID   string    `json:"ruleId"`
	Severity string    `json:"severity"`
	Range    wireRange `json:"range"`
	Message  string    `json:"message"`
	Fixes    []wireFix `json:"fixes,omitempty"`
}

// check runs every rule against every line. Lines are 1-based and columns
// 0-based per the wire contract; the rules are ASCII patterns, so byte
// offsets equal UTF-16 offsets here.
func (s *Server) check(content string) []wireViolation {
	violations := []wireViolation{}
	for i, line := range strings.Split(content, "\n") {
		for _, rule := range s.rules {
			loc := rule.Pattern.FindStringIndex(line)
			if loc == nil {
				continue
			}
			rng := wireRange{
				Start: wirePosition{Line: i + 1, Character: loc[0]},
				End:   wirePosition{Line: i + 1, Character: loc[1]},
			}
			v := wireViolation{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Range:    rng,
				Message:  rule.Message,
			}
			if rule.FixLabel != "" {
				v.Fixes = []wireFix{{
					Label: rule.FixLabel,
					Edits: []wireEdit{{Range: rng, NewText: ""}},
				}}
			}
			violations = append(violations, v)
		}
	}
	return violations
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
