// Package prompt implements the system prompt builder and template
// replacer (spec §4.9): layered fragment assembly plus per-request
// token substitution.
package prompt

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/mxf-project/mxf/internal/observability"
)

// TokenContext carries every value a recognized token may resolve to for
// one request. Fields left zero-valued resolve to an empty string.
type TokenContext struct {
	Now             time.Time
	TimeZone        string // IANA zone name, defaults to UTC
	AgentID         string
	ChannelID       string
	ChannelName     string
	ActiveAgentIDs  []string
	LLMProvider     string
	LLMModel        string
	SystemLLMStatus string
	ORPARPhase      string
}

// tokenPattern matches a `{{TOKEN_NAME}}` placeholder, mirroring the
// teacher's VariableEngine delimiter convention
// (internal/templates/variables.go) but resolved by flat lookup rather
// than text/template, since unknown tokens must survive untouched
// instead of erroring.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Z0-9_]+)\s*\}\}`)

// Resolve computes the recognized-token value table for tc (spec §4.9's
// token list).
func (tc TokenContext) Resolve() map[string]string {
	zone := tc.TimeZone
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
		zone = "UTC"
	}
	now := tc.Now
	if now.IsZero() {
		now = time.Now()
	}
	local := now.In(loc)

	agentsList := "none"
	if len(tc.ActiveAgentIDs) > 0 {
		agentsList = strings.Join(tc.ActiveAgentIDs, ", ")
	}

	return map[string]string{
		"DATE_TIME":           local.Format("Monday, January 2, 2006 - 15:04"),
		"DAY_OF_WEEK":         local.Weekday().String(),
		"CURRENT_YEAR":        fmt.Sprintf("%d", local.Year()),
		"CURRENT_MONTH":       local.Month().String(),
		"CURRENT_DAY":         fmt.Sprintf("%d", local.Day()),
		"TIME_ZONE":           zone,
		"ISO_TIMESTAMP":       now.UTC().Format(time.RFC3339),
		"OS_PLATFORM":         runtime.GOOS,
		"AGENT_ID":            tc.AgentID,
		"CHANNEL_ID":          tc.ChannelID,
		"CHANNEL_NAME":        tc.ChannelName,
		"ACTIVE_AGENTS_COUNT": fmt.Sprintf("%d", len(tc.ActiveAgentIDs)),
		"ACTIVE_AGENTS_LIST":  agentsList,
		"LLM_PROVIDER":        tc.LLMProvider,
		"LLM_MODEL":           tc.LLMModel,
		"SYSTEM_LLM_STATUS":   tc.SystemLLMStatus,
		"CURRENT_ORPAR_PHASE": tc.ORPARPhase,
	}
}

// ReplaceTokens substitutes every recognized `{{TOKEN}}` occurrence in
// text with its resolved value. Unknown tokens are left intact and
// logged (spec §4.9: "defensive"), never treated as an error. Applied
// fresh on every request, never cached (spec §4.9).
func ReplaceTokens(ctx context.Context, logger *observability.Logger, text string, values map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if v, ok := values[name]; ok {
			return v
		}
		if logger != nil {
			logger.Warn(ctx, "unrecognized prompt template token", "token", name)
		}
		return match
	})
}
