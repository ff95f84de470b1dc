package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/roomverse/internal/model"
	"github.com/rcliao/roomverse/internal/store"
)

const loreHeader = "[Relevant Lore]"

// LoreEngine performs the associative, depth-bounded keyword lookup that
// turns a message into injectable background knowledge.
type LoreEngine struct {
	lore  store.LoreStore
	depth int
}

// NewLoreEngine creates an engine with the given expansion depth.
func NewLoreEngine(lore store.LoreStore, depth int) *LoreEngine {
	if depth <= 0 {
		depth = 2
	}
	return &LoreEngine{lore: lore, depth: depth}
}

// Retrieve expands text into matched lore entries and renders them under
// a fixed header, or returns "" when nothing matches.
//
// Matching runs in rounds. Each round checks every not-yet-found entry's
// terms (keyword, translated keyword, aliases) as case-insensitive
// substrings of the text discovered so far; matched content joins the
// search text for the next round, which is what makes multi-hop
// association work (entry A's content naming a term that triggers entry
// B). The per-entry found-set guards against re-matching, and the depth
// bound keeps cost at O(depth x entries) even for self-referential
// content. Constant entries are injected up front regardless of match.
func (e *LoreEngine) Retrieve(ctx context.Context, text string) (string, error) {
	entries, err := e.lore.ListLore(ctx, true)
	if err != nil {
		return "", fmt.Errorf("load lorebook: %w", err)
	}
	if len(entries) == 0 {
		return "", nil
	}

	found := make(map[string]bool, len(entries))
	var matches []model.LoreEntry

	// frontier is the text added since the previous round; every entry
	// has already been checked against all earlier text, so scanning only
	// the new additions is equivalent to rescanning the whole haystack.
	frontier := strings.ToLower(text)

	for _, en := range entries {
		if en.Constant {
			found[en.Keyword] = true
			matches = append(matches, en)
			frontier += "\n" + strings.ToLower(en.DisplayContent())
		}
	}

	for round := 0; round < e.depth && frontier != ""; round++ {
		var added []string
		for _, en := range entries {
			if found[en.Keyword] {
				continue
			}
			if !matchesText(en, frontier) {
				continue
			}
			found[en.Keyword] = true
			matches = append(matches, en)
			added = append(added, strings.ToLower(en.DisplayContent()))
		}
		frontier = strings.Join(added, "\n")
	}

	if len(matches) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(loreHeader + "\n")
	for _, en := range matches {
		if en.KeywordTranslated != "" {
			fmt.Fprintf(&b, "- %s (%s): %s\n", en.Keyword, en.KeywordTranslated, en.DisplayContent())
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", en.Keyword, en.DisplayContent())
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func matchesText(en model.LoreEntry, haystack string) bool {
	for _, term := range en.MatchTerms() {
		if term == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
