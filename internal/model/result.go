package model

// JobResult is the results summary written when a job completes. Exactly
// one of the payload pointers is set, matching Kind.
type JobResult struct {
	Kind             JobKind                  `json:"kind"`
	Verification     *VerificationSummary     `json:"verification,omitempty"`
	TemplateProspect *TemplateProspectSummary `json:"template_prospect,omitempty"`
	AIProspect       *AIProspectSummary       `json:"ai_prospect,omitempty"`
	Location         *LocationSummary         `json:"location,omitempty"`
}

// VerificationSummary summarizes a verification run.
type VerificationSummary struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
	Skipped  int `json:"skipped"`
}

// TemplateProspectSummary summarizes a template prospecting run.
type TemplateProspectSummary struct {
	Requested int      `json:"requested"`
	Generated int      `json:"generated"`
	Locations []string `json:"locations"`
	Source    string   `json:"location_source"`
}

// AIProspectSummary summarizes an AI-driven prospecting run.
type AIProspectSummary struct {
	BusinessType    string            `json:"business_type"`
	TargetLocations []string          `json:"target_locations"`
	CitiesSearched  int               `json:"cities_searched"`
	Found           int               `json:"found"`
	Duplicates      int               `json:"duplicates"`
	Created         int               `json:"created"`
	Patterns        []string          `json:"patterns,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Insights        []LocationInsight `json:"location_insights,omitempty"`
}

// LocationSummary summarizes a nearby-search prospecting run.
type LocationSummary struct {
	BusinessType string  `json:"business_type"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters int     `json:"radius_meters"`
	Found        int     `json:"found"`
	Created      int     `json:"created"`
}

// LocationInsight is one observation produced by location analysis.
type LocationInsight struct {
	Location string `json:"location"`
	Count    int    `json:"count,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// LocationAnalysis is the output of AI location extraction.
type LocationAnalysis struct {
	TargetLocations  []string          `json:"targetLocations"`
	Patterns         []string          `json:"patterns"`
	Recommendations  []string          `json:"recommendations"`
	LocationInsights []LocationInsight `json:"locationInsights"`
	StateFilter      string            `json:"stateFilter,omitempty"`
}

// EmptyLocationAnalysis is the shape returned when extraction is skipped or
// exhausts its attempts.
func EmptyLocationAnalysis() *LocationAnalysis {
	return &LocationAnalysis{
		TargetLocations:  []string{},
		Patterns:         []string{},
		Recommendations:  []string{},
		LocationInsights: []LocationInsight{},
	}
}

// Usable reports whether the analysis carries at least one target location.
func (a *LocationAnalysis) Usable() bool {
	return a != nil && len(a.TargetLocations) > 0
}
