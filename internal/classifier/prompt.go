package classifier

import (
	"fmt"
	"strings"

	"github.com/lucasmonteiro/triageflow/pkg/models"
)

const systemPrompt = `You are a medical triage system following the Manchester Triage Protocol.
Your job is to analyze patient symptoms and classify the urgency of care.

PRIORITY LEVELS (Manchester Protocol):
1. EMERGENCY (Red) - Immediate life risk - Immediate care
2. VERY_URGENT (Orange) - Potential life risk - Care within 10 minutes
3. URGENT (Yellow) - Conditions that may deteriorate - Care within 60 minutes
4. LESS_URGENT (Green) - Stable conditions - Care within 120 minutes
5. NON_URGENT (Blue) - Chronic or minor conditions - Care within 240 minutes

EMERGENCY CRITERIA:
- Cardiorespiratory arrest
- Unconsciousness
- Hypovolemic shock
- Airway obstruction
- Severe hemorrhage
- Chest pain with signs of infarction
- Stroke within 4.5 hours

VERY URGENT CRITERIA:
- Intense chest pain
- Severe dyspnea
- Acute neurological changes
- Intense abdominal pain
- High fever (>39C) with signs of sepsis
- Persistent vomiting with dehydration

SPECIAL CONSIDERATIONS:
- Children (<12 years): prioritize high fever, vomiting, lethargy
- Elderly (>=65 years): signs may be subtle, consider comorbidities
- Pregnant patients: prioritize abdominal pain, bleeding, high blood pressure

REQUIRED RESPONSE FORMAT (JSON):
{
  "priority": "EMERGENCY|VERY_URGENT|URGENT|LESS_URGENT|NON_URGENT",
  "recommendation": "Detailed medical recommendation",
  "reasoning": "Technical justification for the classification",
  "confidence": 0.95
}

INSTRUCTIONS:
- Analyze ALL reported symptoms
- Consider the patient's age and gender
- Use professional medical terminology
- Be conservative: when in doubt, prioritize
- Confidence must be between 0.0 and 1.0
- Respond ONLY with valid JSON`

// BuildPrompt renders the full classification prompt for a triage.
func BuildPrompt(triage *models.Triage, patient *models.Patient) string {
	var b strings.Builder

	b.WriteString(systemPrompt)
	b.WriteString("\n\nPATIENT DATA:\n")
	fmt.Fprintf(&b, "- Age: %d years\n", patient.Age())
	fmt.Fprintf(&b, "- Gender: %s\n", patient.Gender)
	if patient.IsChild() {
		b.WriteString("- NOTE: pediatric patient\n")
	}
	if patient.IsElderly() {
		b.WriteString("- NOTE: elderly patient\n")
	}

	b.WriteString("\nREPORTED SYMPTOMS:\n")
	for i, s := range triage.Symptoms {
		fmt.Fprintf(&b, "%d. Description: %s | Intensity: %d/10", i+1, s.Description, s.Intensity)
		if strings.TrimSpace(s.Location) != "" {
			fmt.Fprintf(&b, " | Location: %s", s.Location)
		}
		if s.IsSevere() {
			b.WriteString(" [SEVERE SYMPTOM]")
		} else if s.IsModerate() {
			b.WriteString(" [MODERATE SYMPTOM]")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nADDITIONAL CONTEXT:\n")
	fmt.Fprintf(&b, "- Total symptoms: %d\n", len(triage.Symptoms))
	fmt.Fprintf(&b, "- Severe symptoms: %d\n", triage.CountSevereSymptoms())
	fmt.Fprintf(&b, "- Moderate symptoms: %d\n", triage.CountModerateSymptoms())
	fmt.Fprintf(&b, "- Triage time: %s\n", triage.CreatedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("\nAnalyze the symptoms and return the triage classification as JSON:")
	return b.String()
}
