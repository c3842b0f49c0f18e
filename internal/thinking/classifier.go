// Package thinking selects a thinking mode for a message and composes the
// persona-layered prompt sent to the completion provider.
//
// DESIGN: Both halves are driven by embedded data files:
//   - modes.yaml:  ordered keyword triggers per mode (order = tie-break)
//   - prompts/*.md: base persona text plus one addendum per mode
//
// Prompt files can be overridden from a directory and reloaded at runtime
// (see Watcher); keyword sets are fixed for the life of the process.
package thinking

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
)

//go:embed modes.yaml
var defaultModesYAML []byte

// KeywordSet is the trigger list for one mode.
type KeywordSet struct {
	Mode     chat.Mode `yaml:"id"`
	Keywords []string  `yaml:"keywords"`
}

type modesFile struct {
	Modes []KeywordSet `yaml:"modes"`
}

// ParseKeywordSets decodes a modes.yaml document, preserving entry order.
func ParseKeywordSets(data []byte) ([]KeywordSet, error) {
	var f modesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse modes: %w", err)
	}
	for i, set := range f.Modes {
		if set.Mode == "" {
			return nil, fmt.Errorf("parse modes: entry %d has no id", i)
		}
		if set.Mode == chat.ModeStandard || set.Mode == chat.ModeAuto {
			return nil, fmt.Errorf("parse modes: %q cannot have keywords", set.Mode)
		}
	}
	return f.Modes, nil
}

// Classifier scores text against keyword sets. Immutable after construction.
type Classifier struct {
	sets []KeywordSet
}

// NewClassifier copies sets and case-folds every keyword.
func NewClassifier(sets []KeywordSet) *Classifier {
	c := &Classifier{sets: make([]KeywordSet, len(sets))}
	for i, set := range sets {
		kws := make([]string, 0, len(set.Keywords))
		for _, kw := range set.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		c.sets[i] = KeywordSet{Mode: set.Mode, Keywords: kws}
	}
	return c
}

var defaultClassifier = sync.OnceValue(func() *Classifier {
	sets, err := ParseKeywordSets(defaultModesYAML)
	if err != nil {
		panic(err)
	}
	return NewClassifier(sets)
})

// DefaultClassifier returns the classifier built from the embedded modes.yaml.
func DefaultClassifier() *Classifier { return defaultClassifier() }

// Score is the keyword hit count for one mode.
type Score struct {
	Mode chat.Mode `json:"mode"`
	Hits int       `json:"hits"`
}

// Scores counts, per mode and in tie-break order, how many keywords occur in
// message. A keyword counts once however often it appears.
func (c *Classifier) Scores(message string) []Score {
	normalized := strings.ToLower(message)
	scores := make([]Score, len(c.sets))
	for i, set := range c.sets {
		scores[i].Mode = set.Mode
		for _, kw := range set.Keywords {
			if strings.Contains(normalized, kw) {
				scores[i].Hits++
			}
		}
	}
	return scores
}

// DetectMode returns the mode with the most keyword hits, earlier entries
// winning ties, or ModeStandard when nothing matches.
func (c *Classifier) DetectMode(message string) chat.Mode {
	best := chat.ModeStandard
	bestHits := 0
	for _, s := range c.Scores(message) {
		if s.Hits > bestHits {
			best, bestHits = s.Mode, s.Hits
		}
	}
	return best
}

// Modes lists the modes that have keyword sets, in tie-break order.
func (c *Classifier) Modes() []chat.Mode {
	modes := make([]chat.Mode, len(c.sets))
	for i, set := range c.sets {
		modes[i] = set.Mode
	}
	return modes
}
