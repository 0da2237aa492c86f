// Package citations resolves grounding references into stable source records
// and embeds citation markers into generated text. Everything here is pure:
// no network calls, no clock, no shared state.
package citations

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SourceKind distinguishes how a source record was produced.
type SourceKind string

const (
	// KindGrounded marks sources derived from provider grounding metadata.
	KindGrounded SourceKind = "grounded"
	// KindFetched marks sources built from plain search + page fetch.
	KindFetched SourceKind = "fetched"
)

// Source is the uniform projection of a cited source consumed downstream,
// regardless of which research strategy produced it.
type Source struct {
	Kind      SourceKind `json:"kind"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	ShortForm string     `json:"short_form"`
	Snippet   string     `json:"snippet,omitempty"`
}

// GroundingRef is a provider-supplied citation token: an opaque target address
// plus the title the provider attached to it.
type GroundingRef struct {
	Title  string
	Target string
}

// ResolvedRef pairs a grounding reference with the short-form label assigned
// to it for the duration of one research task.
type ResolvedRef struct {
	Title     string
	Target    string
	ShortForm string
}

// shortFormBase is the synthetic address prefix used for per-task short-form
// labels. The final text rewrites these back to the resolved targets, so the
// prefix never survives into output returned to callers.
const shortFormBase = "https://search.id"

// ResolveReferences assigns each grounding reference a short-form label that
// is stable within the task: the same target always maps to the same label,
// and resolving the same input twice yields the same mapping.
func ResolveReferences(refs []GroundingRef, taskID int) []ResolvedRef {
	resolved := make([]ResolvedRef, 0, len(refs))
	byTarget := make(map[string]string)

	for _, ref := range refs {
		target := strings.TrimSpace(ref.Target)
		if target == "" {
			continue
		}
		short, ok := byTarget[target]
		if !ok {
			short = fmt.Sprintf("%s/%d-%d", shortFormBase, taskID, len(byTarget))
			byTarget[target] = short
		}
		resolved = append(resolved, ResolvedRef{
			Title:     ref.Title,
			Target:    target,
			ShortForm: short,
		})
	}
	return resolved
}

// Span is one citation to insert: character offsets into the original text
// plus the references supporting that span.
type Span struct {
	Start int
	End   int
	Refs  []ResolvedRef
}

// InsertMarkers inserts bracketed citation markers immediately after each
// span's end offset. Offsets index the unmodified input, so spans are applied
// in descending end order; duplicate spans at the same end offset collapse to
// one insertion, and spans with offsets outside the text are dropped.
func InsertMarkers(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}

	valid := make([]Span, 0, len(spans))
	seenEnd := make(map[int]bool)
	for _, s := range spans {
		if s.End < 0 || s.End > len(text) || s.Start < 0 || s.Start > s.End {
			continue
		}
		if seenEnd[s.End] {
			continue
		}
		seenEnd[s.End] = true
		valid = append(valid, s)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].End > valid[j].End })

	out := text
	for _, s := range valid {
		marker := formatMarkers(s.Refs)
		if marker == "" {
			continue
		}
		out = out[:s.End] + marker + out[s.End:]
	}
	return out
}

func formatMarkers(refs []ResolvedRef) string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, r := range refs {
		if r.ShortForm == "" || seen[r.ShortForm] {
			continue
		}
		seen[r.ShortForm] = true
		label := r.Title
		if label == "" {
			label = domainOf(r.Target)
		}
		fmt.Fprintf(&b, " [%s](%s)", label, r.ShortForm)
	}
	return b.String()
}

// InsertHeuristic appends a citation marker to the end of the first sentence
// that mentions an early word of a source's title. It is used by the fallback
// strategy, which has no character offsets to work from. At most one marker
// is inserted per source; a source whose title never matches is skipped.
// The matching is best effort and misses are expected.
func InsertHeuristic(text string, sources []Source) string {
	for _, src := range sources {
		marker := fmt.Sprintf(" [%s](%s)", src.ShortForm, src.URL)
		if strings.Contains(text, marker) {
			continue
		}

		lower := strings.ToLower(text)
		for _, word := range titleWords(src.Title, 3) {
			if !strings.Contains(lower, word) {
				continue
			}
			sentences := strings.Split(text, ".")
			for i, sentence := range sentences {
				if strings.Contains(strings.ToLower(sentence), word) && !strings.Contains(sentence, marker) {
					sentences[i] = sentence + marker
					break
				}
			}
			text = strings.Join(sentences, ".")
			break
		}
	}
	return text
}

// titleWords returns up to n lowercase words of a title that are long enough
// to be meaningful match candidates.
func titleWords(title string, n int) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.Trim(w, `"'.,:;!?()[]`)
		if len(w) > 3 {
			words = append(words, w)
		}
		if len(words) == n {
			break
		}
	}
	return words
}

// DedupSources merges the sources accumulated across a run by canonical URL
// and rewrites every short-form alias in the final text to the resolved URL.
// The first-seen title and snippet win; later aliases of an already-seen URL
// are still rewritten so no short-form label survives in the output.
// Running it again on its own output yields no further change.
func DedupSources(finalText string, sources []Source) (string, []Source) {
	var unique []Source
	var aliases []Source
	seen := make(map[string]int)

	for _, src := range sources {
		key := CanonicalURL(src.URL)
		if key == "" {
			continue
		}

		if src.Kind == KindGrounded && src.ShortForm != "" && src.ShortForm != src.URL {
			aliases = append(aliases, src)
		}

		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = len(unique)
		unique = append(unique, src)
	}

	// Longer labels first: sequential ids make one label a prefix of
	// another ("/1-1" vs "/1-10"), so replacing the shorter one first
	// would corrupt the longer one.
	sort.SliceStable(aliases, func(i, j int) bool {
		return len(aliases[i].ShortForm) > len(aliases[j].ShortForm)
	})
	for _, src := range aliases {
		finalText = strings.ReplaceAll(finalText, src.ShortForm, src.URL)
	}
	return finalText, unique
}

// CanonicalURL normalizes a URL for deduplication: lowercased scheme and
// host, no www prefix, no fragment, no tracking query parameters, no
// trailing slash. Invalid input yields the empty string.
func CanonicalURL(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Host = strings.TrimPrefix(parsed.Host, "www.")
	parsed.Fragment = ""

	if parsed.RawQuery != "" {
		q := parsed.Query()
		for _, param := range []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"fbclid", "gclid", "msclkid",
		} {
			q.Del(param)
		}
		parsed.RawQuery = q.Encode()
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

// domainOf extracts the bare host from a URL for display labels, dropping
// any port and a leading www prefix.
func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// ShortFormFor builds a domain-based short-form label for a fetched source,
// e.g. "[example.com]".
func ShortFormFor(rawURL string) string {
	return "[" + domainOf(rawURL) + "]"
}
