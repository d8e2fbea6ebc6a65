// Package suggest asks a text-completion model to map spreadsheet columns
// onto the candidate catalog.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fmuoria/talent-admin/internal/models"
)

// ErrMappingSuggestionFailed is returned once every attempt has failed.
// Callers fall back to manual mapping.
var ErrMappingSuggestionFailed = eris.New("suggest: mapping suggestion failed")

const (
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 2
	// DefaultBackoff is multiplied by the retry number before each retry
	DefaultBackoff = time.Second
	// samplesPerColumn caps the example values shown per column
	samplesPerColumn = 3
)

// Completer is the text-completion call the suggester needs
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Suggester proposes a column mapping using a language model
type Suggester struct {
	client     Completer
	maxRetries int
	backoff    time.Duration
}

// Option configures a Suggester
type Option func(*Suggester)

// WithMaxRetries sets how many times a failed attempt is retried
func WithMaxRetries(n int) Option {
	return func(s *Suggester) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between attempts
func WithBackoff(d time.Duration) Option {
	return func(s *Suggester) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// NewSuggester creates a new suggester instance
func NewSuggester(client Completer, opts ...Option) *Suggester {
	s := &Suggester{
		client:     client,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest returns the model's mapping for headers. Columns the model maps
// to null are left out. Transport errors, unparseable replies and replies
// naming unknown headers or fields are retried; when all attempts fail the
// error matches ErrMappingSuggestionFailed.
func (s *Suggester) Suggest(ctx context.Context, headers []string, sample [][]string, fields models.Catalog) (models.ColumnMapping, error) {
	prompt := BuildPrompt(headers, sample, fields)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * s.backoff
			zap.L().Warn("suggest: retrying mapping suggestion",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
		attempts++

		response, err := s.client.Complete(ctx, prompt)
		if err != nil {
			lastErr = eris.Wrap(err, "suggest: completion")
			continue
		}

		mapping, err := ParseResponse(response, headers, fields)
		if err != nil {
			lastErr = err
			continue
		}
		return mapping, nil
	}

	return nil, eris.Wrapf(ErrMappingSuggestionFailed, "%d attempts: %v", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BuildPrompt writes the instruction sent to the model
func BuildPrompt(headers []string, sample [][]string, fields models.Catalog) string {
	var sb strings.Builder

	sb.WriteString("I have a spreadsheet with the following columns: ")
	sb.WriteString(strings.Join(headers, ", "))
	sb.WriteString("\n\nHere are some sample values for each column:\n")
	for i, h := range headers {
		var values []string
		for _, row := range sample {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				values = append(values, row[i])
				if len(values) == samplesPerColumn {
					break
				}
			}
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", h, strings.Join(values, ", ")))
	}

	sb.WriteString("\nI need to map these columns to a talent management system with the following fields (label, then field ID in brackets):\n")
	for _, f := range fields {
		required := ""
		if f.Required {
			required = " (Required)"
		}
		sb.WriteString(fmt.Sprintf("- %s [%s]%s\n", f.Label, f.ID, required))
	}

	sb.WriteString("\nReturn your answer ONLY as a valid JSON object where keys are my column names and values are the corresponding field IDs. ")
	sb.WriteString("If a column doesn't map to any field, assign null as its value.\n\n")
	sb.WriteString("The response should be in this format exactly:\n")
	sb.WriteString("{\n  \"Column Name 1\": \"field_id_1\",\n  \"Column Name 2\": null\n}\n")

	return sb.String()
}

// ParseResponse extracts and validates the mapping object in a model reply
func ParseResponse(response string, headers []string, fields models.Catalog) (models.ColumnMapping, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	var parsed map[string]*string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, eris.Wrap(err, "suggest: decode mapping")
	}

	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	out := make(models.ColumnMapping, len(parsed))
	for header, target := range parsed {
		if !known[header] {
			return nil, eris.Errorf("suggest: reply maps unknown column %q", header)
		}
		if target == nil || models.IsAbsent(*target) {
			continue
		}
		if _, ok := fields.Lookup(*target); !ok {
			return nil, eris.Errorf("suggest: reply maps %q to unknown field %q", header, *target)
		}
		out[header] = *target
	}
	return out, nil
}

// ExtractJSON finds the JSON object in free-form model output. A ```json
// fence wins, then any ``` fence, then the first balanced {...} span.
func ExtractJSON(text string) (string, error) {
	for _, open := range []string{"```json", "```"} {
		if body, ok := fenced(text, open); ok {
			return body, nil
		}
	}
	if span, ok := objectSpan(text); ok {
		return span, nil
	}
	return "", eris.New("suggest: no JSON object in reply")
}

func fenced(text, open string) (string, bool) {
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if !strings.HasPrefix(body, "{") {
		return "", false
	}
	return body, true
}

// objectSpan returns the first {...} with balanced braces, skipping braces inside strings
func objectSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
