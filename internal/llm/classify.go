package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

// Chatter is the part of Client used by the classifier
type Chatter interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// NCMTable resolves official NCM descriptions
type NCMTable interface {
	NCM(ctx context.Context, code string) (*model.NCM, error)
}

// Suggestion is one candidate classification
type Suggestion struct {
	NCM         string  `json:"ncm"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	// Known is set when the code exists in the local NCM table
	Known bool `json:"known"`
}

// MaxSuggestions caps how many candidates are requested
const MaxSuggestions = 5

// Classifier suggests NCM codes for product descriptions
type Classifier struct {
	chat   Chatter
	model  string
	table  NCMTable
	logger *zap.Logger
}

// ClassifierOption configures a Classifier
type ClassifierOption func(*Classifier)

// WithModel sets the model used for classification
func WithModel(model string) ClassifierOption {
	return func(c *Classifier) {
		c.model = model
	}
}

// WithNCMTable checks suggestions against the reference table
func WithNCMTable(t NCMTable) ClassifierOption {
	return func(c *Classifier) {
		c.table = t
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClassifierOption {
	return func(c *Classifier) {
		c.logger = l
	}
}

// NewClassifier creates a classifier. A nil chat leaves it disabled.
func NewClassifier(chat Chatter, opts ...ClassifierOption) *Classifier {
	c := &Classifier{chat: chat, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an LLM is configured
func (c *Classifier) Enabled() bool {
	return c != nil && c.chat != nil
}

type ncmResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// SuggestNCM asks the LLM for up to limit NCM codes, drops malformed codes
// and returns them ordered by confidence.
func (c *Classifier) SuggestNCM(ctx context.Context, description string, limit int) ([]Suggestion, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ncm classification: %w", model.ErrUnavailable)
	}
	description = strings.TrimSpace(description)
	if description == "" || len(description) > 500 {
		return nil, model.NewValidationError("description", nil, "len", "must have 1 to 500 characters")
	}
	if limit < 1 || limit > MaxSuggestions {
		limit = MaxSuggestions
	}

	answer, err := c.chat.Complete(ctx, Prompt{
		Model:  c.model,
		System: SystemPromptNCMClassifier,
		User:   fmt.Sprintf(UserPromptNCMSuggestion, limit, description),
	})
	if err != nil {
		return nil, model.NewLookupError("llm", "classification request failed", err)
	}

	var resp ncmResponse
	if err := json.Unmarshal([]byte(ExtractJSON(answer)), &resp); err != nil {
		c.logger.Warn("unparseable classification", zap.String("answer", answer), zap.Error(err))
		return nil, model.NewLookupError("llm", "answer is not the expected JSON", err)
	}

	seen := make(map[string]bool)
	out := make([]Suggestion, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		s.NCM = brdoc.OnlyDigits(s.NCM)
		if !validate.ValidNCM(s.NCM) || seen[s.NCM] {
			continue
		}
		seen[s.NCM] = true
		s.Confidence = clamp(s.Confidence)
		if c.table != nil {
			if ref, err := c.table.NCM(ctx, s.NCM); err == nil {
				s.Known = true
				s.Description = ref.Description
			}
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > limit {
		out = out[:limit]
	}
	c.logger.Info("ncm suggested", zap.String("description", description), zap.Int("suggestions", len(out)))
	return out, nil
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
