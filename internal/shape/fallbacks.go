package shape

// FallbackBullets pads bullet lists when the model delivers fewer items
// than the prompt asked for. The pool is as large as MaxBullets so a
// list can always be filled.
var FallbackBullets = []string{
	"Led a 72-hour migration from legacy infrastructure to a cloud-native, remote-first stack.",
	"Built the LuminOS AI application ecosystem across security, finance, media intelligence, and legal workflows.",
	"Designed a security-first environment with modern identity, device lifecycle automation, and layered backups.",
	"Supports high-visibility events and media operations with resilient infrastructure and rapid delivery.",
	"Leads with an AI-augmented, automation-first mindset while maintaining strict security guardrails.",
	"Runs identity on JumpCloud with Google Workspace sync, modern MFA, and zero-touch device deployment.",
	"Maintains a SecurityScorecard average of 98/100 across five years of continuous assessment.",
	"Operates a hybrid office on a Ubiquiti network stack with dual-WAN failover and a 10GbE backbone.",
	"Protects GLAAD.org with AWS Route 53, CloudFront with WAF, and segmented EC2 tiers.",
	"Ships internal web apps on React and TypeScript with Firebase Hosting, Functions, and Firestore.",
}

// FallbackSummary replaces a prose reply that still fails the adequacy
// check after one regeneration.
const FallbackSummary = "Leo Chui is Associate IT Director at GLAAD, where he leads " +
	"infrastructure, security, and the LuminOS internal AI ecosystem. He is best known " +
	"for a 72-hour cloud migration and a sustained security-first track record."
