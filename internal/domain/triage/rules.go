package triage

// Rule tiers scanned by Classify, highest severity first. Matching is
// case-insensitive substring search over the report text, mirroring the
// phrasing radiologists actually dictate.
var tiers = []struct {
	severity Severity
	phrases  []string
}{
	{SeverityRed, []string{
		"pulmonary embolism",
		"aortic dissection",
		"hemorrhage",
		"intracranial bleed",
		"tension pneumothorax",
		"pneumothorax",
		"cardiac tamponade",
		"infarct",
	}},
	{SeverityOrange, []string{
		"mass",
		"lesion",
		"fracture",
		"pneumonia",
		"appendicitis",
	}},
	{SeverityYellow, []string{
		"nodule",
		"cyst",
		"inflammation",
		"chronic changes",
		"follow-up recommended",
		"mild",
		"possible",
	}},
	{SeverityGreen, []string{
		"within normal limits",
		"unremarkable",
		"normal",
	}},
}

// actionTemplates maps a severity to its immediate-action protocol.
var actionTemplates = map[Severity][]string{
	SeverityRed: {
		"Notify attending physician immediately",
		"Prepare for emergency intervention",
		"Alert OR if surgical intervention needed",
	},
	SeverityOrange: {
		"Contact on-call physician within 15 minutes",
		"Schedule urgent follow-up",
	},
	SeverityYellow: {
		"Flag for follow-up imaging",
		"Correlate with clinical symptoms",
	},
	SeverityGreen: {
		"Standard monitoring protocol",
	},
}

// conditionRecommendations maps condition phrases to treatment guidance.
var conditionRecommendations = map[string]string{
	"pulmonary embolism": "Anticoagulation per PE protocol",
	"aortic dissection":  "Emergency cardiothoracic surgery consultation",
	"hemorrhage":         "Neurosurgical evaluation",
	"intracranial bleed": "Neurosurgical evaluation",
	"pneumothorax":       "Chest tube placement evaluation",
	"pneumonia":          "Antibiotic therapy consideration",
	"fracture":           "Orthopedic consultation",
	"mass":               "Oncology referral and tissue sampling",
	"lesion":             "Dedicated follow-up imaging",
	"nodule":             "Interval surveillance imaging",
}

// Actions returns the immediate-action protocol for a severity.
func Actions(severity Severity) []string {
	actions := actionTemplates[severity]
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// Recommend returns treatment recommendations for the given condition
// phrases, in input order, skipping conditions without a known protocol.
func Recommend(conditions []string) []string {
	var recs []string
	seen := make(map[string]bool)
	for _, c := range conditions {
		rec, ok := conditionRecommendations[normalize(c)]
		if !ok || seen[rec] {
			continue
		}
		seen[rec] = true
		recs = append(recs, rec)
	}
	return recs
}
