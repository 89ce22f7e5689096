package agent

import (
	"fmt"
	"strings"

	"github.com/loomcomputeco/loom/pkg/memory"
)

// memoryItemBudget caps each retrieved bullet line.
const memoryItemBudget = 240

// BuildInput carries everything a prompt builder may use. Builders are
// pure: same input, same prompt.
type BuildInput struct {
	Agent     *Config
	Memories  []memory.ScoredMemory
	History   []Pair
	UserInput string
	Nick      string
}

// Builder assembles the final prompt string for a turn.
type Builder interface {
	BuildPrompt(in BuildInput) (string, error)
}

// DefaultBuilder produces the standard layout: system preface, relevant
// memory bullets in descending score, recent history oldest first, and the
// User/Assistant trailer. The memory block is first cut, lowest-score
// first, to the agent's Memory.MaxContextChars when that is set. The total
// character budget is then enforced by
// dropping retrieved items lowest-score first, then trimming oldest
// history pairs; the user input and trailer are never trimmed.
type DefaultBuilder struct{}

// BuildPrompt implements Builder.
func (DefaultBuilder) BuildPrompt(in BuildInput) (string, error) {
	budget := in.Agent.MaxPromptChars
	if budget <= 0 {
		budget = DefaultMaxPromptChars
	}

	nick := in.Nick
	if nick == "" {
		nick = in.Agent.Nick
	}

	preface := strings.ReplaceAll(in.Agent.Preface, "{nick}", nick)

	memories := in.Memories
	history := in.History

	// The memory block alone is held to the agent's memory context cap.
	if limit := in.Agent.Memory.MaxContextChars; limit > 0 {
		for len(memories) > 0 {
			size := len("Relevant memory:\n") + 1
			for _, m := range memories {
				size += len(FormatMemoryLine(m)) + 3
			}
			if size <= limit {
				break
			}
			memories = memories[:len(memories)-1]
		}
	}

	for {
		prompt := render(preface, memories, history, in.UserInput)
		if len(prompt) <= budget {
			return prompt, nil
		}
		// Shed the lowest-scored memory first; memories arrive sorted
		// descending, so that is the last element.
		if len(memories) > 0 {
			memories = memories[:len(memories)-1]
			continue
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		// Nothing left to shed; the input and trailer stay whole.
		return prompt, nil
	}
}

func render(preface string, memories []memory.ScoredMemory, history []Pair, userInput string) string {
	var sb strings.Builder

	if preface != "" {
		sb.WriteString(preface)
		sb.WriteString("\n\n")
	}

	if len(memories) > 0 {
		sb.WriteString("Relevant memory:\n")
		for _, m := range memories {
			sb.WriteString("- ")
			sb.WriteString(FormatMemoryLine(m))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	for _, pair := range history {
		fmt.Fprintf(&sb, "User: %s\n\nAssistant: %s\n\n", pair.User, flatten(pair.Assistant))
	}

	fmt.Fprintf(&sb, "User: %s\n\nAssistant:", flatten(userInput))
	return sb.String()
}

// FormatMemoryLine renders one retrieved item as a role-tagged bullet,
// truncated to the per-item budget.
func FormatMemoryLine(m memory.ScoredMemory) string {
	c := m.Candidate
	var line string
	switch c.Kind {
	case "chunk":
		line = fmt.Sprintf("[summary] %s", flatten(c.Summary))
	default:
		line = fmt.Sprintf("[%s] %s", c.Role, flatten(c.Text))
	}
	if len(line) > memoryItemBudget {
		line = line[:memoryItemBudget]
	}
	return line
}

func flatten(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
