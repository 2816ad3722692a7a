package domain

// UserProfile captures the user attributes the recommendation engine
// personalizes against. Every field has a default so a sparse client
// payload still produces a usable profile.
type UserProfile struct {
	FitnessLevel           string   `json:"fitness_level,omitempty"`
	Equipment              []string `json:"equipment,omitempty"`
	AvailableMinutesPerDay int      `json:"available_minutes_per_day,omitempty"`
	AffectedSide           string   `json:"affected_side,omitempty"`
	MonthsSinceDiagnosis   int      `json:"months_since_diagnosis,omitempty"`
}

// WithDefaults fills absent fields with conservative defaults.
func (p UserProfile) WithDefaults() UserProfile {
	if p.FitnessLevel == "" {
		p.FitnessLevel = "beginner"
	}
	if len(p.Equipment) == 0 {
		p.Equipment = []string{"none"}
	}
	if p.AvailableMinutesPerDay <= 0 {
		p.AvailableMinutesPerDay = 15
	}
	if p.AffectedSide == "" {
		p.AffectedSide = "unknown"
	}
	if p.MonthsSinceDiagnosis <= 0 {
		p.MonthsSinceDiagnosis = 1
	}
	return p
}
