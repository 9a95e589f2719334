package convo

// Hand-authored answers for the questions visitors ask most. They are
// checked before the hashed cache and written through into it on first
// use, so later lookups take the general cache path.
var canonicalAnswers = map[string]string{
	"what does leo do": "Leo Chui is Associate IT Director at GLAAD, where he leads " +
		"infrastructure, security, and the LuminOS internal AI application ecosystem. " +
		"He pairs an AI-first workflow with a security-first mindset.",
	"who is leo chui": "Leo Chui is Associate IT Director at GLAAD. He led a 72-hour " +
		"migration from legacy on-prem infrastructure to a cloud-native, remote-first " +
		"stack and built LuminOS, an internal AI app ecosystem.",
	"should i hire leo": "Yes. He led a 72-hour cloud migration under COVID pressure, " +
		"built the LuminOS AI ecosystem across security, finance, and media workflows, " +
		"and sustains a security posture averaging 98/100 on SecurityScorecard.",
	"what is luminos": "LuminOS is Leo's internal AI app ecosystem at GLAAD: Diffract " +
		"for security, Refract for finance, Prism for media intelligence, Spectrum for " +
		"media analysis, and NetRunner for legal workflows.",
	"tell me about the migration": "Leo led a 72-hour COVID-era migration from a legacy " +
		"on-prem stack to a cloud-native, remote-first architecture. It replaced Windows " +
		"Server 2008, hybrid Exchange, ShoreTel phones, and a VPN without MFA.",
}

// Canonical returns the hand-authored answer for a normalized prompt.
func Canonical(normalizedPrompt string) (string, bool) {
	reply, ok := canonicalAnswers[normalizedPrompt]
	return reply, ok
}
