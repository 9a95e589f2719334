// Package shape turns free-form model output into bounded, well-formed
// replies: either a fixed-count bullet list or a punctuation-complete
// paragraph. Everything here is a pure function over text so each
// repair rule is testable in isolation.
package shape

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxBullets caps how many bullets a prompt may request.
const MaxBullets = 10

// maxBulletChars bounds each bullet line, marker excluded.
const maxBulletChars = 160

var (
	bulletRequestRe = regexp.MustCompile(`(?i)(\d+)\s*(bullet|bullets|points?)`)
	bulletMarkerRe  = regexp.MustCompile(`^(\d+[.)]\s+|[-•*]\s+)(.*)$`)
	markerStripRe   = regexp.MustCompile(`[-•*]\s+`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	shortRequestRe  = regexp.MustCompile(`(?i)\b(short|brief|briefly|quick|quickly|one\s+(sentence|line|word)|tl;?dr)\b`)
	trailingDashRe  = regexp.MustCompile(`[-–—]\s*$`)
	bareNumberRe    = regexp.MustCompile(`^\d{1,3}$`)
)

// danglingWords are connectors and prepositions a sentence must not end
// on; an item ending with one is a fragment.
var danglingWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "with": {}, "to": {}, "of": {},
	"for": {}, "the": {}, "a": {}, "an": {}, "in": {}, "on": {},
	"at": {}, "by": {}, "as": {}, "so": {}, "because": {}, "while": {},
	"when": {}, "which": {}, "that": {}, "who": {}, "whose": {},
	"into": {}, "about": {}, "between": {}, "during": {}, "than": {},
	"via": {}, "plus": {},
}

// BulletCount returns the bullet count a prompt asks for, capped at
// MaxBullets, or 0 when the prompt does not request bullets.
func BulletCount(prompt string) int {
	m := bulletRequestRe.FindStringSubmatch(prompt)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	if n > MaxBullets {
		return MaxBullets
	}
	return n
}

// ShortAnswerRequested reports whether the prompt explicitly asks for a
// short answer, which exempts the reply from the adequacy check.
func ShortAnswerRequested(prompt string) bool {
	return shortRequestRe.MatchString(prompt)
}

// FormatBullets shapes raw model output into exactly count bulleted
// lines, each at most 160 characters and prefixed with "- ".
func FormatBullets(text string, count int) string {
	items := extractBulletItems(text)
	if items == nil {
		items = splitSentences(text)
	}
	items = mergeFragments(items)
	items = expandItems(items, count)
	items = dropMalformed(items)
	items = padWithFallbacks(items, count)

	if len(items) > count {
		items = items[:count]
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		s := firstSentence(item)
		if len([]rune(s)) > maxBulletChars {
			s = strings.TrimSpace(string([]rune(s)[:maxBulletChars-3])) + "..."
		}
		lines = append(lines, "- "+s)
	}
	return strings.Join(lines, "\n")
}

// extractBulletItems pulls bulleted or numbered lines out of the text.
// A marker starts a new item; continuation lines are appended to the
// current one. Returns nil when the text has no markers at all.
func extractBulletItems(text string) []string {
	sawMarker := false
	var items []string
	var current string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}

		if m := bulletMarkerRe.FindStringSubmatch(line); m != nil {
			sawMarker = true
			if current != "" {
				items = append(items, strings.TrimSpace(current))
			}
			current = strings.TrimSpace(m[2])
			continue
		}

		if current != "" {
			current = current + " " + line
		} else {
			current = line
		}
	}
	if current != "" {
		items = append(items, strings.TrimSpace(current))
	}

	if !sawMarker {
		return nil
	}

	out := items[:0]
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// splitSentences splits prose into sentence segments with their
// terminal punctuation stripped.
func splitSentences(text string) []string {
	cleaned := whitespaceRe.ReplaceAllString(markerStripRe.ReplaceAllString(text, ""), " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}

	var segments []string
	var b strings.Builder
	runes := []rune(cleaned)
	for i, r := range runes {
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') &&
			(i+1 == len(runes) || runes[i+1] == ' ') {
			seg := strings.TrimSpace(strings.TrimRight(b.String(), ".!?"))
			if seg != "" {
				segments = append(segments, seg)
			}
			b.Reset()
		}
	}
	if seg := strings.TrimSpace(strings.TrimRight(b.String(), ".!?")); seg != "" {
		segments = append(segments, seg)
	}
	return segments
}

// mergeFragments joins items the model split mid-thought: an item
// ending in a colon, a dangling connector, or a bare trailing number
// belongs with the item that follows it.
func mergeFragments(items []string) []string {
	var out []string
	for i := 0; i < len(items); i++ {
		current := items[i]
		for endsDangling(current) && i+1 < len(items) {
			i++
			current = strings.TrimSpace(current) + " " + items[i]
		}
		out = append(out, strings.TrimSpace(current))
	}
	return out
}

func endsDangling(item string) bool {
	item = strings.TrimSpace(item)
	if item == "" {
		return false
	}
	if strings.HasSuffix(item, ":") {
		return true
	}
	words := strings.Fields(item)
	last := strings.ToLower(strings.Trim(words[len(words)-1], ",;"))
	if _, ok := danglingWords[last]; ok {
		return true
	}
	return bareNumberRe.MatchString(last)
}

// expandItems splits items on internal separators until the target
// count is reached or nothing is left to split.
func expandItems(items []string, target int) []string {
	separators := []string{"; ", ", ", " and "}

	result := append([]string(nil), items...)
	for len(result) < target {
		idx := -1
		var sep string
		for i, item := range result {
			for _, s := range separators {
				if strings.Contains(item, s) {
					idx, sep = i, s
					break
				}
			}
			if idx != -1 {
				break
			}
		}
		if idx == -1 {
			break
		}

		var parts []string
		for _, p := range strings.Split(result[idx], sep) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) <= 1 {
			break
		}

		expanded := make([]string, 0, len(result)+len(parts)-1)
		expanded = append(expanded, result[:idx]...)
		expanded = append(expanded, parts...)
		expanded = append(expanded, result[idx+1:]...)
		result = expanded
	}
	return result
}

// dropMalformed removes items with no real content or that still end
// mid-thought after merging.
func dropMalformed(items []string) []string {
	var out []string
	for _, item := range items {
		if malformed(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func malformed(item string) bool {
	item = strings.TrimSpace(item)
	words := strings.Fields(item)
	if len(words) == 0 {
		return true
	}
	if len(words) < 3 && len([]rune(item)) < 12 {
		return true
	}
	if strings.HasSuffix(item, ",") || strings.HasSuffix(item, ";") || strings.HasSuffix(item, ":") {
		return true
	}
	last := strings.ToLower(words[len(words)-1])
	if _, ok := danglingWords[last]; ok {
		return true
	}
	return bareNumberRe.MatchString(last)
}

// padWithFallbacks tops the list up from the fallback pool, skipping
// statements already present (case-insensitively).
func padWithFallbacks(items []string, target int) []string {
	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[strings.ToLower(item)] = struct{}{}
	}

	for _, fallback := range FallbackBullets {
		if len(items) >= target {
			break
		}
		if _, ok := present[strings.ToLower(fallback)]; ok {
			continue
		}
		items = append(items, fallback)
		present[strings.ToLower(fallback)] = struct{}{}
	}
	return items
}

func firstSentence(item string) string {
	for i, r := range item {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(item[:i]); s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(item)
}

// FinalizeProse closes a paragraph grammatically: collapse stuttered
// periods, strip a dangling dash, and make sure the text ends on
// terminal punctuation, truncating back to the last complete sentence
// if it does not.
func FinalizeProse(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed
	}

	for strings.HasSuffix(trimmed, "..") {
		trimmed = strings.TrimSuffix(trimmed, ".")
	}
	trimmed = strings.TrimSpace(trailingDashRe.ReplaceAllString(trimmed, ""))
	if trimmed == "" {
		return trimmed
	}

	if strings.ContainsRune(".!?…", lastRune(trimmed)) {
		return trimmed
	}
	if strings.ContainsRune(",:;", lastRune(trimmed)) {
		return strings.TrimRight(trimmed, ",:;") + "."
	}

	lastPunct := strings.LastIndexAny(trimmed, ".!?")
	if lastPunct != -1 {
		return trimmed[:lastPunct+1]
	}
	return trimmed + "."
}

// Adequate reports whether prose model output reads as a complete
// answer: at least two sentence-like segments, none a stub, and no
// dangling connector at the end. Short answers are exempt when the
// caller asked for one.
func Adequate(text string, shortRequested bool) bool {
	if shortRequested {
		return true
	}

	segments := splitSentences(text)
	if len(segments) < 2 {
		return false
	}
	for _, seg := range segments {
		if len(strings.Fields(seg)) < 6 {
			return false
		}
	}
	return !endsDangling(strings.TrimRight(strings.TrimSpace(text), ".!?…"))
}

// Clamp bounds the shaped reply to maxChars. It prefers cutting at the
// last sentence boundary past 60% of the limit; otherwise it hard
// truncates with an ellipsis.
func Clamp(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	truncated := strings.TrimSpace(string(runes[:maxChars]))
	lastSentence := strings.LastIndexAny(truncated, ".!?")
	if lastSentence > maxChars*6/10 {
		return truncated[:lastSentence+1]
	}

	stripped := []rune(strings.TrimRight(truncated, ",:;"))
	if len(stripped) >= maxChars {
		stripped = stripped[:maxChars-1]
	}
	return string(stripped) + "…"
}

func lastRune(s string) rune {
	r := []rune(s)
	return r[len(r)-1]
}
