package matcher

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"mediameter/internal/models"
	"mediameter/internal/registry"
)

// Match is one entity hit inside an item's text.
type Match struct {
	Slug      string
	Method    string // models.MatchExact or models.MatchVariant
	Ambiguous bool
	Snippet   string
}

// Matcher finds tracked entities in free text. It is a pure function of
// (text, registry snapshot): no storage, no scoring, no entity creation.
type Matcher struct {
	// SnippetRunes is the context window kept around the first hit.
	SnippetRunes int
}

type span struct {
	start  int // rune offset, inclusive
	end    int // rune offset, exclusive
	slug   string
	method string
}

// Match runs a case-insensitive, word-boundary-aware search of every
// entity's display name and name variants over title+body. A single item
// may match any number of entities; each hit is reported independently.
//
// Overlap rules:
//   - a hit whose span is strictly contained in a longer hit of a different
//     entity is dropped (the longer, more specific alias wins);
//   - if the same surviving span satisfies several entities, every one of
//     those hits is flagged ambiguous.
func (m *Matcher) Match(title, body string, snap *registry.Snapshot) []Match {
	if snap.Empty() {
		return nil
	}
	text := title
	if body != "" {
		if text != "" {
			text += "\n"
		}
		text += body
	}
	if text == "" {
		return nil
	}

	// Rune-wise lowering keeps offsets aligned between the folded text used
	// for searching and the original used for snippets.
	runes := []rune(text)
	folded := foldRunes(runes)

	var spans []span
	for i := range snap.Entities {
		ent := &snap.Entities[i]
		if ent.Slug == "" {
			continue
		}
		if m.vetoed(folded, ent.MinusWords) {
			continue
		}
		if ent.DisplayName != "" {
			spans = append(spans, findAll(folded, ent.DisplayName, ent.Slug, models.MatchExact)...)
		}
		for _, variant := range ent.Variants {
			if strings.EqualFold(variant, ent.DisplayName) {
				continue
			}
			spans = append(spans, findAll(folded, variant, ent.Slug, models.MatchVariant)...)
		}
	}
	if len(spans) == 0 {
		return nil
	}

	spans = resolveContainment(spans)
	ambiguous := ambiguousSpans(spans)

	// Reduce to one match per entity: earliest span wins the snippet, an
	// exact-name hit anywhere wins the method.
	perEntity := map[string]*Match{}
	first := map[string]span{}
	for _, sp := range spans {
		hit, ok := perEntity[sp.slug]
		if !ok {
			perEntity[sp.slug] = &Match{
				Slug:      sp.slug,
				Method:    sp.method,
				Ambiguous: ambiguous[spanKey(sp)],
				Snippet:   m.snippet(runes, sp),
			}
			first[sp.slug] = sp
			continue
		}
		if sp.method == models.MatchExact {
			hit.Method = models.MatchExact
		}
		if ambiguous[spanKey(sp)] {
			hit.Ambiguous = true
		}
		if sp.start < first[sp.slug].start {
			first[sp.slug] = sp
			hit.Snippet = m.snippet(runes, sp)
		}
	}

	out := make([]Match, 0, len(perEntity))
	for _, hit := range perEntity {
		out = append(out, *hit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (m *Matcher) vetoed(folded []rune, minusWords []string) bool {
	for _, word := range minusWords {
		if len(findAll(folded, word, "", "")) > 0 {
			return true
		}
	}
	return false
}

func (m *Matcher) snippet(runes []rune, sp span) string {
	window := m.SnippetRunes
	if window <= 0 {
		window = 120
	}
	start := sp.start - window/2
	if start < 0 {
		start = 0
	}
	end := sp.end + window/2
	if end > len(runes) {
		end = len(runes)
	}
	return strings.TrimSpace(string(runes[start:end]))
}

func foldRunes(runes []rune) []rune {
	folded := make([]rune, len(runes))
	for i, r := range runes {
		folded[i] = unicode.ToLower(r)
	}
	return folded
}

// findAll returns every word-boundary occurrence of needle in the folded
// haystack. A boundary is any position where the neighbouring rune is not a
// letter or digit.
func findAll(folded []rune, needle, slug, method string) []span {
	target := foldRunes([]rune(strings.TrimSpace(needle)))
	n := len(target)
	if n == 0 {
		return nil
	}
	var out []span
	limit := len(folded) - n
	for i := 0; i <= limit; i++ {
		if folded[i] != target[0] {
			continue
		}
		matched := true
		for j := 1; j < n; j++ {
			if folded[i+j] != target[j] {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if i > 0 && isWordRune(folded[i-1]) {
			continue
		}
		if i+n < len(folded) && isWordRune(folded[i+n]) {
			continue
		}
		out = append(out, span{start: i, end: i + n, slug: slug, method: method})
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// resolveContainment drops spans strictly contained inside a longer span of
// a different entity. Identical spans are always kept; ambiguity handles
// those.
func resolveContainment(spans []span) []span {
	out := spans[:0:0]
	for _, a := range spans {
		contained := false
		for _, b := range spans {
			if a.slug == b.slug {
				continue
			}
			if b.start <= a.start && a.end <= b.end && (b.end-b.start) > (a.end-a.start) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, a)
		}
	}
	return out
}

// ambiguousSpans flags every (start,end) claimed by more than one entity.
func ambiguousSpans(spans []span) map[string]bool {
	claims := map[string]map[string]struct{}{}
	for _, sp := range spans {
		key := spanKey(sp)
		if claims[key] == nil {
			claims[key] = map[string]struct{}{}
		}
		claims[key][sp.slug] = struct{}{}
	}
	out := map[string]bool{}
	for key, slugs := range claims {
		out[key] = len(slugs) > 1
	}
	return out
}

func spanKey(sp span) string {
	// start:end identifies the text region independent of the entity.
	return strconv.Itoa(sp.start) + ":" + strconv.Itoa(sp.end)
}
