package generator

// Patient is an immutable synthetic demographic profile.
type Patient struct {
	ID             string   `json:"patientId"`
	Age            int      `json:"age"`
	Gender         string   `json:"gender"`
	MedicalHistory []string `json:"medicalHistory"`
}

// conditionPool is the fixed draw pool for medical histories. The "None"
// sentinel is a real pool entry: drawing it consumes a slot without adding
// a condition, so histories skew shorter than the drawn count.
var conditionPool = []string{
	"Hypertension",
	"Type 2 Diabetes",
	"Asthma",
	"Hyperlipidemia",
	"Coronary Artery Disease",
	"Hypothyroidism",
	"Chronic Kidney Disease",
	"COPD",
	"Anemia",
	"Atrial Fibrillation",
	"Osteoarthritis",
	"Rheumatoid Arthritis",
	"Depression",
	"Anxiety Disorder",
	"GERD",
	"Obesity",
	"Migraine",
	"Osteoporosis",
	"None",
}

const maxConditions = 5

// GeneratePatient produces one synthetic patient: coin-flip gender, uniform
// age in [18,85], and an age-weighted medical history of distinct conditions.
func (g *Generator) GeneratePatient() Patient {
	gender := "M"
	if g.Chance(0.5) {
		gender = "F"
	}
	age := g.IntInRange(18, 85)

	count := g.IntInRange(0, float64(age/15))
	if count > maxConditions {
		count = maxConditions
	}

	history := make([]string, 0, count)
	drawn := make(map[int]bool, count)
	for len(drawn) < count {
		idx := g.rng.Intn(len(conditionPool))
		if drawn[idx] {
			continue
		}
		drawn[idx] = true
		if conditionPool[idx] == "None" {
			continue
		}
		history = append(history, conditionPool[idx])
	}
	if len(history) == 0 {
		history = []string{"None"}
	}

	return Patient{
		ID:             g.NewID("P", 8),
		Age:            age,
		Gender:         gender,
		MedicalHistory: history,
	}
}
