package thinking

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
)

//go:embed prompts/*.md
var defaultPromptFS embed.FS

// baseSection is the persona file every system prompt starts with.
// Every other prompts/{mode}.md file is the addendum for that mode.
const baseSection = "base"

// PromptSet is one immutable generation of persona texts.
type PromptSet struct {
	Base    string
	Addenda map[chat.Mode]string
}

// SystemPrompt returns the base text, followed by the mode addendum when the
// mode has one. Standard and unknown modes get the base text alone.
func (p *PromptSet) SystemPrompt(mode chat.Mode) string {
	if mode == chat.ModeStandard {
		return p.Base
	}
	if add := p.Addenda[mode]; add != "" {
		return p.Base + "\n\n" + add
	}
	return p.Base
}

// Sections lists the section names that can be overridden, base first.
func Sections() []string {
	entries, _ := fs.Glob(defaultPromptFS, "prompts/*.md")
	names := []string{baseSection}
	for _, e := range entries {
		name := strings.TrimSuffix(filepath.Base(e), ".md")
		if name != baseSection {
			names = append(names, name)
		}
	}
	sort.Strings(names[1:])
	return names
}

// LoadPrompts builds a PromptSet from the embedded texts. When overrideDir is
// set, any {section}.md found there replaces the embedded section.
func LoadPrompts(overrideDir string) (*PromptSet, error) {
	set := &PromptSet{Addenda: make(map[chat.Mode]string)}
	for _, name := range Sections() {
		text, err := loadSection(name, overrideDir)
		if err != nil {
			return nil, err
		}
		if name == baseSection {
			set.Base = text
			continue
		}
		set.Addenda[chat.Mode(name)] = text
	}
	if set.Base == "" {
		return nil, errors.New("prompts: base persona text is empty")
	}
	return set, nil
}

// DefaultPrompts returns the embedded PromptSet.
func DefaultPrompts() *PromptSet {
	set, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return set
}

func loadSection(name, overrideDir string) (string, error) {
	file := name + ".md"
	if overrideDir != "" {
		data, err := os.ReadFile(filepath.Join(overrideDir, file))
		switch {
		case err == nil:
			return strings.TrimSpace(string(data)), nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("prompts: read override %s: %w", file, err)
		}
	}
	data, err := defaultPromptFS.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("prompts: read embedded %s: %w", file, err)
	}
	return strings.TrimSpace(string(data)), nil
}
