package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
)

const locationSystemPrompt = `You analyze lists of existing business customers and identify where to look for similar prospects.
Respond with a single JSON object and nothing else, using exactly these keys:
{"targetLocations": ["City, ST", ...], "patterns": [string], "recommendations": [string], "locationInsights": [{"location": "City, ST", "count": number, "notes": string}], "stateFilter": "ST or empty"}
targetLocations lists at most 8 US cities formatted as "City, ST", most promising first.
If the data contains no usable location information return an empty targetLocations array.`

// ClaudeAnalyzer extracts target locations by asking Claude to read a
// sample of the source rows.
type ClaudeAnalyzer struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	sampleRows int
	breakers   *resilience.ServiceBreakers
}

// NewClaudeAnalyzer creates an analyzer. A nil client makes it unavailable.
func NewClaudeAnalyzer(client anthropic.Client, model string, maxTokens int64, sampleRows int, breakers *resilience.ServiceBreakers) *ClaudeAnalyzer {
	if breakers == nil {
		breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &ClaudeAnalyzer{
		client:     client,
		model:      model,
		maxTokens:  maxTokens,
		sampleRows: sampleRows,
		breakers:   breakers,
	}
}

// Available reports whether an API client is configured.
func (a *ClaudeAnalyzer) Available() bool {
	return a != nil && a.client != nil
}

// AnalyzeForLocations sends one request and parses the JSON reply. A reply
// that cannot be parsed is an error so callers can retry it.
func (a *ClaudeAnalyzer) AnalyzeForLocations(ctx context.Context, rows []model.SourceRow) (*model.LocationAnalysis, error) {
	if !a.Available() {
		return nil, eris.New("lookup: anthropic client not configured")
	}

	temp := 0.2
	req := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.SystemBlock{
			{Text: locationSystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages:    []anthropic.Message{{Role: "user", Content: buildRowsPrompt(rows, a.sampleRows)}},
		Temperature: &temp,
	}

	resp, err := resilience.Call(ctx, a.breakers, ServiceAnthropic, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "lookup: analyze locations")
	}
	resp.Usage.LogCost(a.model, "analyze_locations")

	analysis, err := parseLocationAnalysis(resp.Text())
	if err != nil {
		return nil, err
	}
	zap.L().Debug("location analysis parsed",
		zap.Int("target_locations", len(analysis.TargetLocations)),
		zap.String("state_filter", analysis.StateFilter),
	)
	return analysis, nil
}

// buildRowsPrompt renders up to limit rows as "key: value" lines with a
// stable column order.
func buildRowsPrompt(rows []model.SourceRow, limit int) string {
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d of %d customer rows:\n\n", limit, len(rows))
	for i, row := range rows[:limit] {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(&b, "Row %d:", i+1)
		for _, k := range keys {
			if v := strings.TrimSpace(row[k]); v != "" {
				fmt.Fprintf(&b, " %s: %s;", k, v)
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nIdentify the target locations for finding similar businesses.")
	return b.String()
}

// parseLocationAnalysis decodes the first JSON object in text, tolerating
// prose or code fences around it.
func parseLocationAnalysis(text string) (*model.LocationAnalysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("lookup: no JSON object in analysis response")
	}

	var out model.LocationAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, eris.Wrap(err, "lookup: decode analysis response")
	}

	out.TargetLocations = cleanLocations(out.TargetLocations)
	if out.Patterns == nil {
		out.Patterns = []string{}
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	if out.LocationInsights == nil {
		out.LocationInsights = []model.LocationInsight{}
	}
	out.StateFilter = strings.ToUpper(strings.TrimSpace(out.StateFilter))
	return &out, nil
}

func cleanLocations(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, l := range in {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			continue
		}
		key := strings.ToLower(l)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
