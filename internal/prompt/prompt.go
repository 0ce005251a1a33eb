// Package prompt assembles the system instruction for a live voice session.
//
// The instruction is plain descriptive sentences in a fixed order: the base
// assistant persona, then tailoring derived from the user's profile, then a
// caveat covering any self-reported medical context. Each part is appended
// only when the corresponding data is present.
package prompt

import "strings"

// basePersona opens every session instruction.
const basePersona = "You are a friendly, knowledgeable skincare assistant for the DermaLive app. " +
	"You help users understand their skin analysis results and build a care routine. " +
	"Keep replies brief and conversational — they are spoken aloud."

// medicalCaveat closes the instruction whenever medical context is present.
const medicalCaveat = "You are not a medical professional; encourage the user to see a " +
	"dermatologist in person for anything serious."

// Profile carries the user-provided profile fields used to tailor advice.
// Empty fields are omitted from the instruction.
type Profile struct {
	SkinType string
	AgeRange string
	Concerns []string
}

// empty reports whether no profile field is set.
func (p Profile) empty() bool {
	return p.SkinType == "" && p.AgeRange == "" && len(p.Concerns) == 0
}

// Context is everything the instruction is assembled from.
type Context struct {
	// Profile tailors advice to the user.
	Profile Profile

	// MedicalContext is the user's self-reported medical background
	// (conditions, medication, allergies). Verbatim user text.
	MedicalContext string
}

// Build assembles the system instruction from ctx. The base persona is
// always present; profile tailoring and the medical caveat follow only when
// their data exists.
func Build(ctx Context) string {
	parts := []string{basePersona}

	if !ctx.Profile.empty() {
		var b strings.Builder
		b.WriteString("Tailor your advice to this user:")
		if ctx.Profile.SkinType != "" {
			b.WriteString(" skin type " + ctx.Profile.SkinType + ";")
		}
		if ctx.Profile.AgeRange != "" {
			b.WriteString(" age range " + ctx.Profile.AgeRange + ";")
		}
		if len(ctx.Profile.Concerns) > 0 {
			b.WriteString(" main concerns: " + strings.Join(ctx.Profile.Concerns, ", ") + ";")
		}
		parts = append(parts, strings.TrimSuffix(b.String(), ";")+".")
	}

	if ctx.MedicalContext != "" {
		parts = append(parts,
			"The user shared this medical context, keep it in mind: "+ctx.MedicalContext+". "+medicalCaveat)
	}

	return strings.Join(parts, " ")
}
