package kit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/agent"
	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/grammar"
	"github.com/loomcomputeco/loom/pkg/memory"
	"github.com/loomcomputeco/loom/pkg/model"
)

// maxInputChars bounds a single user input.
const maxInputChars = 32768

type chatOptions struct {
	useMemory       bool
	persist         bool
	touchHistory    bool
	nick            string
	grammarOverride string
	stopsOverride   []string
}

// chat is the per-turn pipeline: resolve agent, ensure session, retrieve,
// assemble, decode, post-process, update history, schedule persistence.
func (k *Kit) chat(ctx context.Context, agentName, input string, opts chatOptions) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fault.New(fault.KindInvalidInput, "empty input")
	}
	if len(input) > maxInputChars {
		return "", fault.New(fault.KindInvalidInput, "input exceeds %d characters", maxInputChars)
	}

	a, err := k.registry.Get(agentName)
	if err != nil {
		return "", err
	}

	if err := k.faults.Allow(); err != nil {
		return "", err
	}

	persist := opts.persist && a.Config.SaveConversations

	var sessionID string
	if persist || (opts.useMemory && a.Config.Memory.Enabled) {
		session, err := k.ensureSession(ctx)
		if err != nil {
			return "", err
		}
		sessionID = session.ID
	}

	// Retrieval: the user input is embedded exactly once and the vector
	// shared with the retriever.
	var memories []memory.ScoredMemory
	if opts.useMemory && a.Config.Memory.Enabled {
		q, err := k.embedder.Embed(ctx, input)
		if err != nil {
			// Retrieval is an enhancement: degrade to history-only.
			k.logger.Warn("query embedding failed, skipping retrieval", zap.Error(err))
		} else {
			memories, err = k.retriever.RetrieveWithEmbedding(ctx, sessionID, input, q, a.Config.Memory.TopK, a.Config.Memory)
			if err != nil {
				k.logger.Warn("retrieval failed, continuing without memory", zap.Error(err))
				memories = nil
			}
		}
	}

	var history []agent.Pair
	if opts.touchHistory {
		history = a.History.Pairs()
	}

	builder := a.Config.Builder
	if builder == nil {
		builder = agent.DefaultBuilder{}
	}
	prompt, err := builder.BuildPrompt(agent.BuildInput{
		Agent:     &a.Config,
		Memories:  memories,
		History:   history,
		UserInput: input,
		Nick:      opts.nick,
	})
	if err != nil {
		return "", fault.Wrap(fault.KindInvalidInput, err, "building prompt for agent %s", agentName)
	}

	if k.promptObserver != nil {
		k.promptObserver(agentName, prompt)
	}

	g := a.Grammar
	if opts.grammarOverride != "" {
		g, err = grammar.Compile(opts.grammarOverride)
		if err != nil {
			return "", fault.Wrap(fault.KindInvalidInput, err, "compiling grammar override")
		}
	}
	stops := a.Config.Stops
	if opts.stopsOverride != nil {
		stops = opts.stopsOverride
	}

	var result model.Result
	err = k.faults.Execute(ctx, "chat_"+agentName, func(ctx context.Context) error {
		var submitErr error
		result, submitErr = k.scheduler.Submit(ctx, model.Request{
			Agent:   agentName,
			Prompt:  prompt,
			Params:  a.Config.Decoding,
			Grammar: g,
			Stops:   stops,
			StateID: a.Config.StateID,
		})
		k.faults.Record(submitErr)
		return submitErr
	})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(result.Text)
	if result.GrammarTerminated {
		k.logger.Warn("reply truncated by grammar exhaustion",
			zap.String("agent", agentName),
		)
	}

	if opts.touchHistory {
		a.History.Append(input, reply)
	}

	if persist && reply != "" {
		k.schedulePersistence(sessionID, agentName, input, memory.StripThink(reply), a.Config.Memory)
	}

	return reply, nil
}
