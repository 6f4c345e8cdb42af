package telegram

import "strings"

// ══════════════════════════════════════════════════════════════════════════════
// CRISIS DETECTION
// A sleep coach is not a crisis service. Messages carrying crisis language
// bypass gamification entirely and get the helpline response instead.
// ══════════════════════════════════════════════════════════════════════════════

var crisisPhrases = []string{
	"kill myself",
	"end my life",
	"suicide",
	"suicidal",
	"want to die",
	"don't want to live",
	"hurt myself",
	"self harm",
	"self-harm",
}

// ContainsCrisisLanguage reports whether the text carries crisis language.
// Matching is conservative substring matching: a false positive costs one
// supportive message, a false negative costs much more.
func ContainsCrisisLanguage(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, phrase := range crisisPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// CrisisResponse returns the fixed supportive message with helpline
// pointers. No XP, no streaks, no gamification framing.
func CrisisResponse() string {
	return "I hear you, and I'm glad you told me. What you're feeling matters.\n\n" +
		"I'm a sleep companion, not a crisis service, so please reach out to " +
		"people who can really help right now:\n\n" +
		"🆘 <b>988</b> — Suicide &amp; Crisis Lifeline (call or text, US)\n" +
		"🌍 <b>befrienders.org</b> — helplines worldwide\n\n" +
		"If you are in immediate danger, call your local emergency number. " +
		"You don't have to go through this alone."
}
