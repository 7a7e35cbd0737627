package convo

import (
	"context"
	"strings"
	"time"

	"github.com/mxf-project/mxf/pkg/models"
)

// CompactionConfig configures context-window compaction, grounded on the
// teacher's session CompactionConfig (internal/sessions/compaction.go)
// trimmed to the single hybrid keep-last-K-and-summarize strategy the
// spec requires rather than the teacher's five selectable strategies.
type CompactionConfig struct {
	Enabled          bool
	MaxMessages      int
	KeepLastN        int
	PreserveSystem   bool
}

// DefaultCompactionConfig returns the spec's default: keep the last 5
// uncompressed messages, summarizing everything older once history
// exceeds 100 messages.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Enabled:        true,
		MaxMessages:    100,
		KeepLastN:      5,
		PreserveSystem: true,
	}
}

// Summarizer produces a textual summary of older messages. Concrete
// implementations call an LLM provider; tests may stub this.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []models.ConversationMessage) (string, error)
}

// Compactor runs context-window compaction over a History.
type Compactor struct {
	cfg        CompactionConfig
	history    *History
	summarizer Summarizer
}

// NewCompactor builds a Compactor bound to history.
func NewCompactor(cfg CompactionConfig, history *History, summarizer Summarizer) *Compactor {
	return &Compactor{cfg: cfg, history: history, summarizer: summarizer}
}

// MaybeCompact compacts sessionID's history if it exceeds cfg.MaxMessages.
// Tool-call pairing is enforced first so that compaction never splits a
// tool call from its result (spec §4.3: "pairs are compacted together").
func (c *Compactor) MaybeCompact(ctx context.Context, sessionID string) (bool, error) {
	if !c.cfg.Enabled {
		return false, nil
	}

	c.history.EnforcePairing(ctx, sessionID)
	msgs := c.history.Messages(sessionID)
	if len(msgs) <= c.cfg.MaxMessages {
		return false, nil
	}

	keepFrom := len(msgs) - c.cfg.KeepLastN
	keepFrom = alignToPairBoundary(msgs, keepFrom)

	var system []models.ConversationMessage
	if c.cfg.PreserveSystem {
		for _, m := range msgs[:keepFrom] {
			if m.Role == models.RoleSystem {
				system = append(system, m)
			}
		}
	}

	older := msgs[:keepFrom]
	recent := msgs[keepFrom:]

	summary := ""
	if c.summarizer != nil {
		s, err := c.summarizer.Summarize(ctx, older)
		if err != nil {
			return false, err
		}
		summary = s
	} else {
		summary = fallbackSummary(older)
	}

	compacted := append([]models.ConversationMessage{}, system...)
	compacted = append(compacted, models.ConversationMessage{
		Role:           models.RoleSystem,
		Content:        summary,
		ContextSummary: true,
		CreatedAt:      time.Now(),
	})
	compacted = append(compacted, recent...)

	c.history.replace(sessionID, compacted)
	return true, nil
}

// alignToPairBoundary nudges keepFrom earlier if it would otherwise split
// an assistant tool-call message from its paired tool-result message.
func alignToPairBoundary(msgs []models.ConversationMessage, keepFrom int) int {
	if keepFrom <= 0 || keepFrom >= len(msgs) {
		if keepFrom < 0 {
			return 0
		}
		return keepFrom
	}
	for i := keepFrom; i < len(msgs); i++ {
		if msgs[i].IsToolResult() {
			keepFrom--
			if keepFrom <= 0 {
				return 0
			}
			continue
		}
		break
	}
	return keepFrom
}

func fallbackSummary(msgs []models.ConversationMessage) string {
	var b strings.Builder
	b.WriteString("Earlier conversation (")
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString("): ")
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			continue
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		if len(m.Content) > 200 {
			b.WriteString(m.Content[:200])
			b.WriteString("...")
		} else {
			b.WriteString(m.Content)
		}
		b.WriteString(" ")
	}
	return b.String()
}
