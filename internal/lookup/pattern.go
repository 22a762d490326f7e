package lookup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

const maxPatternLocations = 8

// PatternAnalyzer extracts locations from address-like columns without an
// AI backend.
type PatternAnalyzer struct{}

// Available always reports true.
func (PatternAnalyzer) Available() bool { return true }

// Deterministic always reports true.
func (PatternAnalyzer) Deterministic() bool { return true }

// AnalyzeForLocations ranks the "City, ST" pairs found in rows by frequency.
func (PatternAnalyzer) AnalyzeForLocations(ctx context.Context, rows []model.SourceRow) (*model.LocationAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := model.EmptyLocationAnalysis()
	counts := RankLocations(rows)
	if len(counts) == 0 {
		return out, nil
	}
	if len(counts) > maxPatternLocations {
		counts = counts[:maxPatternLocations]
	}

	states := make(map[string]struct{})
	for _, c := range counts {
		out.TargetLocations = append(out.TargetLocations, c.Location)
		out.LocationInsights = append(out.LocationInsights, model.LocationInsight{
			Location: c.Location,
			Count:    c.Count,
		})
		if _, st, ok := strings.Cut(c.Location, ", "); ok {
			states[st] = struct{}{}
		}
	}

	top := counts[0]
	out.Patterns = append(out.Patterns, fmt.Sprintf("%d of %d rows are in %s", top.Count, len(rows), top.Location))
	if len(states) == 1 {
		for st := range states {
			out.StateFilter = st
			out.Patterns = append(out.Patterns, "all located rows are in "+st)
		}
	}
	out.Recommendations = append(out.Recommendations, fmt.Sprintf("prospect the top %d cities by existing customer count", len(counts)))
	return out, nil
}

// LocationCount is a location and the number of rows that mention it.
type LocationCount struct {
	Location string
	Count    int
}

// RankLocations collects "City, ST" pairs from rows, most frequent first
// and alphabetical among ties.
func RankLocations(rows []model.SourceRow) []LocationCount {
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, row := range rows {
		loc, ok := RowLocation(row)
		if !ok {
			continue
		}
		key := strings.ToLower(loc)
		if _, seen := display[key]; !seen {
			display[key] = loc
		}
		counts[key]++
	}

	out := make([]LocationCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, LocationCount{Location: display[k], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Location < out[j].Location
	})
	return out
}

// RowLocation finds a "City, ST" pair in a row, preferring explicit city
// and state columns over free-form address columns.
func RowLocation(row model.SourceRow) (string, bool) {
	var city, state string
	var addresses []string
	for k, v := range row {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch key := strings.ToLower(strings.TrimSpace(k)); {
		case key == "city":
			city = v
		case key == "state" || key == "st":
			state = v
		case strings.Contains(key, "address") || strings.Contains(key, "location"):
			addresses = append(addresses, v)
		}
	}
	if city != "" && state != "" {
		return city + ", " + stripPostalCode(state), true
	}
	sort.Strings(addresses)
	for _, a := range addresses {
		if loc, ok := CityState(a); ok {
			return loc, true
		}
	}
	return "", false
}

// CityState takes the last two non-empty comma separated segments of an
// address as "City, State". A trailing country segment and a postal code
// after the state are dropped.
func CityState(address string) (string, bool) {
	var parts []string
	for _, p := range strings.Split(address, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if n := len(parts); n > 2 && isCountry(parts[n-1]) {
		parts = parts[:n-1]
	}
	if len(parts) < 2 {
		return "", false
	}
	city := parts[len(parts)-2]
	state := stripPostalCode(parts[len(parts)-1])
	if state == "" {
		return "", false
	}
	return city + ", " + state, true
}

func isCountry(s string) bool {
	switch strings.ToUpper(s) {
	case "USA", "US", "U.S.A.", "UNITED STATES":
		return true
	}
	return false
}

func stripPostalCode(s string) string {
	fields := strings.Fields(s)
	for len(fields) > 1 && strings.IndexFunc(fields[len(fields)-1], func(r rune) bool {
		return (r < '0' || r > '9') && r != '-'
	}) < 0 {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}
