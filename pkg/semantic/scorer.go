package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/statement-mapper/internal/config"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxPairs  = 200
	defaultRateLimit = 5

	// pairsPerRequest keeps each prompt small enough that the model scores
	// every pair instead of summarizing.
	pairsPerRequest = 25

	scoreMaxTokens = 1024
)

const systemPrompt = `You are a financial statement analyst. You judge whether
an extracted line item label refers to the same concept as a spreadsheet
template row label, given the row's section context.

Respond with ONLY a JSON object of the form:
{"scores": [{"id": 0, "score": 0.85}, ...]}

One entry per pair, using the given pair ids. Scores are between 0.0 (unrelated
concepts) and 1.0 (same concept). Do not include any other text.`

// Pair is one fact/slot label combination to score.
type Pair struct {
	FactID      string
	SlotID      string
	FactLabel   string
	SlotLabel   string
	SlotContext string
}

// Key identifies the pair in the score map handed to the matcher.
func (p Pair) Key() string {
	return p.FactID + "|" + p.SlotID
}

// Scorer pre-fetches compatibility scores for candidate pairs.
type Scorer struct {
	client   Client
	model    string
	maxPairs int
	limiter  *rate.Limiter
}

// NewScorer builds a scorer over the given client and settings.
func NewScorer(client Client, cfg config.SemanticConfig) *Scorer {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxPairs := cfg.MaxPairs
	if maxPairs <= 0 {
		maxPairs = defaultMaxPairs
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = defaultRateLimit
	}
	return &Scorer{
		client:   client,
		model:    model,
		maxPairs: maxPairs,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Score fetches compatibility scores for the given pairs, keyed by Pair.Key.
// Pairs beyond the configured cap are dropped in order. A failed request
// drops only its own chunk: absent scores are a supported degraded mode, so
// Score never returns an error for request failures, only for context
// cancellation.
func (s *Scorer) Score(ctx context.Context, pairs []Pair) (map[string]float64, error) {
	if len(pairs) > s.maxPairs {
		zap.L().Warn("semantic pair cap reached",
			zap.Int("pairs", len(pairs)),
			zap.Int("max_pairs", s.maxPairs),
		)
		pairs = pairs[:s.maxPairs]
	}

	scores := make(map[string]float64, len(pairs))
	for start := 0; start < len(pairs); start += pairsPerRequest {
		end := start + pairsPerRequest
		if end > len(pairs) {
			end = len(pairs)
		}
		chunk := pairs[start:end]

		if err := s.limiter.Wait(ctx); err != nil {
			return scores, err
		}
		if err := s.scoreChunk(ctx, chunk, scores); err != nil {
			if ctx.Err() != nil {
				return scores, ctx.Err()
			}
			zap.L().Warn("semantic chunk failed, continuing without scores",
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
		}
	}
	return scores, nil
}

type scoredPair struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

type scoreResponse struct {
	Scores []scoredPair `json:"scores"`
}

func (s *Scorer) scoreChunk(ctx context.Context, chunk []Pair, scores map[string]float64) error {
	resp, err := s.client.CreateMessage(ctx, MessageRequest{
		Model:     s.model,
		MaxTokens: scoreMaxTokens,
		System:    []SystemBlock{{Text: systemPrompt}},
		Messages:  []Message{{Role: "user", Content: buildPrompt(chunk)}},
	})
	if err != nil {
		return err
	}
	resp.Usage.LogCost(s.model)

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(cleanJSON(extractText(resp))), &parsed); err != nil {
		return eris.Wrap(err, "semantic: parse score response")
	}

	for _, sp := range parsed.Scores {
		if sp.ID < 0 || sp.ID >= len(chunk) {
			continue
		}
		scores[chunk[sp.ID].Key()] = clamp01(sp.Score)
	}
	return nil
}

func buildPrompt(chunk []Pair) string {
	var sb strings.Builder
	sb.WriteString("Score these label pairs:\n\n")
	for i, p := range chunk {
		fmt.Fprintf(&sb, "Pair %d:\n  Extracted label: %s\n  Template row: %s\n", i, p.FactLabel, p.SlotLabel)
		if p.SlotContext != "" {
			fmt.Fprintf(&sb, "  Row context: %s\n", p.SlotContext)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// extractText returns the concatenated text from a message response.
func extractText(resp *MessageResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// cleanJSON strips markdown code fences and surrounding prose so the model
// response parses even when it ignores the output format instruction.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
