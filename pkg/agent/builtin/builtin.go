// Package builtin defines the stock agents every facade carries: the
// default chat agent, the grammar-bound memory extractor, and the chunk
// summarizer.
package builtin

import (
	"fmt"

	"github.com/loomcomputeco/loom/pkg/agent"
	"github.com/loomcomputeco/loom/pkg/memory"
	"github.com/loomcomputeco/loom/pkg/model"
)

// ChatAgentName is the agent bound by the nick-override shortcut.
const ChatAgentName = "chat"

// ExtractorAgentName is the memory-extractor agent.
const ExtractorAgentName = "memory_extractor"

// SummarizerAgentName is the chunk summarizer agent.
const SummarizerAgentName = "summarizer"

// DefaultNick is the chat agent's persona name when none is configured.
const DefaultNick = "Assistant"

const chatPreface = `System: You are {nick}, a helpful assistant with a long-term memory of past conversations. Use the relevant memory and the recent exchanges below to answer naturally. Stay concise and factual; when memory contradicts the user, trust the user.`

// Chat returns the default conversational agent: persistence on, memory
// retrieval on, "chat" conditioning state.
func Chat() agent.Config {
	return agent.Config{
		Name:    ChatAgentName,
		Preface: chatPreface,
		Nick:    DefaultNick,
		Decoding: model.Params{
			MaxTokens:        2048,
			Temperature:      0.5,
			TopP:             0.3,
			PresencePenalty:  0.5,
			FrequencyPenalty: 0.5,
		},
		Stops:             []string{"\n\nUser:", "\n\nSystem:"},
		StateID:           "chat",
		SaveConversations: true,
		Memory:            memory.EnabledPolicy(),
	}
}

// JSONObjectGrammar admits exactly one JSON object, arbitrarily nested.
// Both structured builtin agents decode under it; their prompts pin the
// expected fields while the grammar pins the syntax.
const JSONObjectGrammar = `root ::= ws object ws
object ::= "{" ws pairs? ws "}"
pairs ::= pair (ws "," ws pair)*
pair ::= string ws ":" ws value
value ::= string | number | object | array | "true" | "false" | "null"
array ::= "[" ws elements? ws "]"
elements ::= value (ws "," ws value)*
string ::= "\"" char* "\""
char ::= [^"\\] | "\\" escape
escape ::= ["\\/bfnrt] | "u" hex hex hex hex
hex ::= [0-9a-fA-F]
number ::= "-"? [0-9]+ frac? exp?
frac ::= "." [0-9]+
exp ::= [eE] [+\-]? [0-9]+
ws ::= [ \t\n\r]*`

const extractorPreface = `System: You are a memory analyst. Given one conversation turn, emit ONLY a JSON object with these fields:
"importance": integer 1-10 rating the turn's long-term significance;
"summary": one-sentence summary, empty if trivial;
"events": array of {"role", "text", "importance", "keywords"} memory fragments worth keeping, role is "user" or "assistant";
"entities": array of {"name", "type"} for people, places, tools and concepts mentioned;
"relations": array of {"source", "label", "target", "weight"} between extracted entity names;
"profile": array of {"key", "value", "importance"} long-lived user preferences.
Base everything strictly on the turn. No hallucinations. Empty arrays are fine.`

// MemoryExtractor returns the grammar-bound extraction agent. It never
// saves its own turns and never retrieves memory.
func MemoryExtractor() agent.Config {
	return agent.Config{
		Name:    ExtractorAgentName,
		Preface: extractorPreface,
		Decoding: model.Params{
			MaxTokens:   4096,
			Temperature: 0,
			TopP:        0,
		},
		Grammar:           JSONObjectGrammar,
		SaveConversations: false,
		Memory:            memory.DefaultPolicy(),
	}
}

const summarizerPreface = `System: You are a conversation summarizer. Given a window of role-tagged conversation lines, emit ONLY a JSON object:
"title": a short topic title, max 10 words;
"summary": an accurate summary of the window, max 100 words;
"importance": integer 1-10 rating the window's significance.
Base everything strictly on the lines given. No hallucinations.`

// Summarizer returns the grammar-bound chunk summarizer agent.
func Summarizer() agent.Config {
	return agent.Config{
		Name:    SummarizerAgentName,
		Preface: summarizerPreface,
		Decoding: model.Params{
			MaxTokens:   1536,
			Temperature: 0,
			TopP:        0,
		},
		Grammar:           JSONObjectGrammar,
		SaveConversations: false,
		Memory:            memory.DefaultPolicy(),
	}
}

// RenderTurn serializes a (user, assistant) pair the way the extractor
// prompt expects it.
func RenderTurn(userInput, reply string) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", userInput, reply)
}
