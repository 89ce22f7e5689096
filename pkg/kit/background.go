package kit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/agent"
	"github.com/loomcomputeco/loom/pkg/agent/builtin"
	"github.com/loomcomputeco/loom/pkg/eventstream"
	"github.com/loomcomputeco/loom/pkg/memory"
	"github.com/loomcomputeco/loom/pkg/model"
	"github.com/loomcomputeco/loom/pkg/worker"
)

// schedulePersistence enqueues the background job that runs the
// memory-extractor turn and persists its output. The job owns its own
// deadline so persistence survives the foreground caller's cancellation.
func (k *Kit) schedulePersistence(sessionID, agentName, userInput, reply string, policy memory.Policy) {
	k.pool.Enqueue(worker.Job{
		Name: "persist:" + agentName,
		Run: func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
			defer cancel()
			k.persistTurn(ctx, sessionID, agentName, userInput, reply, policy)
		},
	})
}

func (k *Kit) persistTurn(ctx context.Context, sessionID, agentName, userInput, reply string, policy memory.Policy) {
	ext := k.extract(ctx, userInput, reply)

	eventIDs, err := k.writer.WriteTurn(ctx, sessionID, memory.Turn{UserInput: userInput, Reply: reply}, ext, policy)
	if err != nil {
		// Background persistence never fails the reply; the error is
		// surfaced as a warning through the error handler's logger.
		k.logger.Warn("background persistence failed",
			zap.String("session_id", sessionID),
			zap.String("agent", agentName),
			zap.Error(err),
		)
		return
	}

	event := &eventstream.TurnPersistedEvent{
		SchemaVersion:  eventstream.SchemaVersionV1,
		EventType:      eventstream.EventTypeTurnPersisted,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now(),
		SessionID:      sessionID,
		AgentName:      agentName,
		MemoryEventIDs: eventIDs,
	}
	if ext != nil {
		event.EntityCount = len(ext.Entities)
		event.RelationCount = len(ext.Relations)
	}
	if err := k.publisher.PublishTurn(ctx, event); err != nil {
		k.logger.Warn("turn event publish failed", zap.Error(err))
	}

	k.maybeSummarize(ctx, sessionID, policy)
}

// extract runs the memory-extractor agent over the turn. A failed or
// unparsable extraction degrades to nil: the writer then persists the raw
// (user, assistant) pair.
func (k *Kit) extract(ctx context.Context, userInput, reply string) *memory.Extraction {
	raw, err := k.invokeStructured(ctx, builtin.ExtractorAgentName, builtin.RenderTurn(userInput, reply))
	if err != nil {
		k.logger.Warn("memory extraction failed", zap.Error(err))
		return nil
	}

	ext, err := memory.ParseExtraction(raw)
	if err != nil {
		k.logger.Warn("memory extraction unparsable", zap.Error(err))
		return nil
	}
	return ext
}

// maybeSummarize checks the uncovered-event threshold and enqueues a
// summarization job when crossed.
func (k *Kit) maybeSummarize(ctx context.Context, sessionID string, policy memory.Policy) {
	threshold := policy.SemanticChunkThreshold
	should, err := k.summarizer.ShouldSummarize(ctx, sessionID, threshold)
	if err != nil {
		k.logger.Warn("summarization check failed", zap.Error(err))
		return
	}
	if !should {
		return
	}

	k.pool.Enqueue(worker.Job{
		Name: "summarize:" + sessionID,
		Run: func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
			defer cancel()
			if err := k.summarizer.Run(ctx, sessionID); err != nil {
				k.logger.Warn("summarization failed",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
			}
		},
	})
}

// invokeSummarizer is the memory.InvokeFunc bound into the summarizer.
func (k *Kit) invokeSummarizer(ctx context.Context, window string) (string, error) {
	return k.invokeStructured(ctx, builtin.SummarizerAgentName, window)
}

// invokeStructured runs one internal grammar-bound agent turn outside the
// short-term history.
func (k *Kit) invokeStructured(ctx context.Context, agentName, input string) (string, error) {
	a, err := k.registry.Get(agentName)
	if err != nil {
		return "", err
	}

	builder := a.Config.Builder
	if builder == nil {
		builder = agent.DefaultBuilder{}
	}
	prompt, err := builder.BuildPrompt(agent.BuildInput{
		Agent:     &a.Config,
		UserInput: input,
	})
	if err != nil {
		return "", err
	}

	result, err := k.scheduler.Submit(ctx, model.Request{
		Agent:   agentName,
		Prompt:  prompt,
		Params:  a.Config.Decoding,
		Grammar: a.Grammar,
		Stops:   a.Config.Stops,
		StateID: a.Config.StateID,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
