// Package checkpoint persists rich session snapshots as immutable,
// timestamp-ordered markdown files. Each file carries a YAML
// frontmatter block that is authoritative on read; the markdown body
// below it exists for humans paging through the checkpoint directory.
package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is one snapshot of session state at a moment worth returning
// to. Records are never modified after Create.
type Record struct {
	Label             string    `yaml:"label"`
	CreatedAt         time.Time `yaml:"created_at"`
	GitSHA            string    `yaml:"git_sha,omitempty"`
	Branch            string    `yaml:"branch,omitempty"`
	Task              string    `yaml:"task,omitempty"`
	Decisions         []string  `yaml:"decisions,omitempty"`
	ProgressChecklist []string  `yaml:"progress,omitempty"`
	KeyFiles          []string  `yaml:"key_files,omitempty"`
	Approach          string    `yaml:"approach,omitempty"`
	Blockers          []string  `yaml:"blockers,omitempty"`
	NextSteps         []string  `yaml:"next_steps,omitempty"`
	ResumptionHints   string    `yaml:"resumption_hints,omitempty"`
}

// encode renders the full file content: frontmatter followed by the
// human-readable body.
func (r Record) encode() (string, error) {
	fm, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint frontmatter: %w", err)
	}
	return fmt.Sprintf("---\n%s---\n\n%s", string(fm), r.renderBody()), nil
}

// renderBody writes the record as markdown sections in a fixed order,
// skipping sections with nothing to say.
func (r Record) renderBody() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Checkpoint: %s\n", r.Label)
	fmt.Fprintf(&b, "\nCreated %s", r.CreatedAt.UTC().Format(time.RFC3339))
	if r.Branch != "" {
		fmt.Fprintf(&b, " on %s", r.Branch)
	}
	if r.GitSHA != "" {
		fmt.Fprintf(&b, " at %s", r.GitSHA)
	}
	b.WriteString("\n")

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	prose := func(title, text string) {
		if text == "" {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", title, text)
	}

	prose("Task", r.Task)
	section("Decisions", r.Decisions)
	section("Progress", r.ProgressChecklist)
	section("Key Files", r.KeyFiles)
	prose("Approach", r.Approach)
	section("Blockers", r.Blockers)
	section("Next Steps", r.NextSteps)
	prose("Resumption Hints", r.ResumptionHints)

	return b.String()
}

// decodeRecord reads a checkpoint file back into a Record. Only the
// frontmatter is consulted; the body is presentation.
func decodeRecord(data []byte) (Record, error) {
	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		return Record{}, fmt.Errorf("checkpoint file has no frontmatter")
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Record{}, fmt.Errorf("checkpoint frontmatter is unterminated")
	}

	var r Record
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &r); err != nil {
		return Record{}, fmt.Errorf("failed to parse checkpoint frontmatter: %w", err)
	}
	return r, nil
}
