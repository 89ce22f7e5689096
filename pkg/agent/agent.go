// Package agent holds per-agent configuration, the registry, short-term
// dialogue history, and prompt assembly.
package agent

import (
	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/grammar"
	"github.com/loomcomputeco/loom/pkg/memory"
	"github.com/loomcomputeco/loom/pkg/model"
)

// Config is an agent's immutable registration record.
type Config struct {
	// Name uniquely identifies the agent.
	Name string

	// Preface is the system preface. The literal "{nick}" is replaced
	// with the effective nick at assembly time.
	Preface string

	// Nick is the agent's default persona name, overridable per turn.
	Nick string

	// Builder assembles the prompt. Nil selects DefaultBuilder.
	Builder Builder

	// Decoding are the sampling parameters submitted with each turn.
	Decoding model.Params

	// Grammar is an optional BNF-like schema constraining output.
	Grammar string

	// Stops are the agent's stop sequences.
	Stops []string

	// StateID names a conditioning-state snapshot, "" for base state.
	StateID string

	// SaveConversations enables background persistence of turns.
	SaveConversations bool

	// Memory is the agent's memory discipline.
	Memory memory.Policy

	// MaxPromptChars is the total prompt character budget. Zero means
	// the default of 8000.
	MaxPromptChars int
}

// DefaultMaxPromptChars is the assembly budget applied when a config
// leaves MaxPromptChars unset.
const DefaultMaxPromptChars = 8000

// Agent is a registered agent: its config plus the compiled grammar and
// its private short-term history.
type Agent struct {
	Config  Config
	Grammar *grammar.Grammar
	History *History
}

// New validates and compiles a config into a runtime agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Name == "" {
		return nil, fault.New(fault.KindInvalidInput, "agent name is required")
	}
	if cfg.Decoding.MaxTokens <= 0 {
		cfg.Decoding = model.DefaultParams()
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = DefaultMaxPromptChars
	}

	a := &Agent{Config: cfg, History: NewHistory(HistoryDepth)}
	if cfg.Grammar != "" {
		g, err := grammar.Compile(cfg.Grammar)
		if err != nil {
			return nil, fault.Wrap(fault.KindInvalidInput, err, "compiling grammar for agent %s", cfg.Name)
		}
		a.Grammar = g
	}
	return a, nil
}
