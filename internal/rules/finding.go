package rules

// Finding severities.
const (
	SeverityViolation      = "violation"
	SeverityWarning        = "warning"
	SeverityRecommendation = "recommendation"
)

// Finding is one explanatory entry in a skill's output: a classification
// code plus a human-readable description. Findings keep the order in which
// the skill recorded them.
type Finding struct {
	Code        string `json:"code"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Violation builds a violation-severity finding.
func Violation(code, description string) Finding {
	return Finding{Code: code, Severity: SeverityViolation, Description: description}
}

// Warning builds a warning-severity finding.
func Warning(code, description string) Finding {
	return Finding{Code: code, Severity: SeverityWarning, Description: description}
}

// Recommendation builds a recommendation-severity finding.
func Recommendation(code, description string) Finding {
	return Finding{Code: code, Severity: SeverityRecommendation, Description: description}
}

// FindingMaps converts findings to the generic map form skill outputs carry,
// preserving order.
func FindingMaps(findings []Finding) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(findings))
	for _, f := range findings {
		out = append(out, map[string]interface{}{
			"code":        f.Code,
			"severity":    f.Severity,
			"description": f.Description,
		})
	}
	return out
}
