package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"realty-agent/internal/domain"
)

const (
	defaultContextTurns = 3
	defaultTargetYear   = 2026
	maxReplyLen         = 1600 // transport limit for one outbound message
	truncationMarker    = "..."
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LLMClient is the model collaborator: opaque text in, raw text out. The
// returned text is untrusted and goes through ParseModelReply.
type LLMClient interface {
	Generate(ctx context.Context, systemInstruction, message string) (string, error)
}

// MessageSender is the outbound transport collaborator.
type MessageSender interface {
	Send(ctx context.Context, to, body string) error
}

// ConversationStore persists and recalls conversation turns.
type ConversationStore interface {
	RecentTurns(ctx context.Context, sender string, limit int) ([]domain.Turn, error)
	SaveTurn(ctx context.Context, turn domain.Turn) error
}

// Pipeline ties one inbound message to its reply and, when the model
// extracted a complete intent, to the appointment sub-flow.
type Pipeline struct {
	params       ParamGetter
	llm          LLMClient
	turns        ConversationStore
	sender       MessageSender
	scheduler    *Scheduler
	paramPrefix  string
	agentName    string
	targetYear   int
	contextTurns int
	log          *slog.Logger

	cacheMu     sync.RWMutex
	cacheLoaded bool
	persona     string
}

type MessageInput struct {
	Sender string
	Body   string
}

func NewPipeline(p ParamGetter, llm LLMClient, turns ConversationStore, sender MessageSender, scheduler *Scheduler, paramPrefix, agentName string, targetYear, contextTurns int, log *slog.Logger) (*Pipeline, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if turns == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if sender == nil {
		return nil, errors.New("usecase: message sender must not be nil")
	}
	if scheduler == nil {
		return nil, errors.New("usecase: scheduler must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if strings.TrimSpace(agentName) == "" {
		return nil, errors.New("usecase: agent name must not be empty")
	}
	if targetYear <= 0 {
		targetYear = defaultTargetYear
	}
	if contextTurns <= 0 {
		contextTurns = defaultContextTurns
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		params:       p,
		llm:          llm,
		turns:        turns,
		sender:       sender,
		scheduler:    scheduler,
		paramPrefix:  paramPrefix,
		agentName:    agentName,
		targetYear:   targetYear,
		contextTurns: contextTurns,
		log:          log,
	}, nil
}

// HandleMessage runs the full pipeline for one inbound message. The chat
// reply is always sent before appointment processing starts, so a failure in
// the appointment sub-flow never costs the user their conversational reply.
func (p *Pipeline) HandleMessage(ctx context.Context, in MessageInput) error {
	sender := strings.TrimSpace(in.Sender)
	if sender == "" {
		return newError(ErrorInvalidInput, "empty_sender", nil)
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return newError(ErrorInvalidInput, "empty_message", nil)
	}
	if err := p.ensureConfig(ctx); err != nil {
		return newError(ErrorInternal, "ssm_load_error", err)
	}

	history, err := p.turns.RecentTurns(ctx, sender, p.contextTurns)
	if err != nil {
		return newError(ErrorInternal, "history_query_error", err)
	}

	raw, err := p.llm.Generate(ctx, buildSystemInstruction(p.persona, p.agentName, p.targetYear, contextFromTurns(history)), body)
	if err != nil {
		return newError(ErrorUpstream, "model_error", err)
	}

	parsed := ParseModelReply(p.log, raw)

	// Turn logging is independent of the appointment outcome; a failed
	// write must not block message delivery.
	if err := p.turns.SaveTurn(ctx, domain.Turn{Sender: sender, Inbound: body, Outbound: parsed.Text}); err != nil {
		p.log.Error("failed to store conversation turn", "sender", sender, "err", err)
	}

	if err := p.sender.Send(ctx, sender, truncateReply(parsed.Text)); err != nil {
		return newError(ErrorUpstream, "reply_send_error", err)
	}

	if parsed.Intent != nil {
		if err := p.scheduler.ProcessIntent(ctx, sender, *parsed.Intent); err != nil {
			p.log.Error("appointment processing failed", "sender", sender, "err", err)
		}
	}
	return nil
}

func (p *Pipeline) ensureConfig(ctx context.Context) error {
	p.cacheMu.RLock()
	if p.cacheLoaded {
		p.cacheMu.RUnlock()
		return nil
	}
	p.cacheMu.RUnlock()

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	if p.cacheLoaded {
		return nil
	}

	persona, err := p.params.GetParameter(ctx, p.paramPrefix+"/persona")
	if err != nil {
		return fmt.Errorf("usecase: load persona: %w", err)
	}

	p.persona = persona
	p.cacheLoaded = true
	return nil
}

// truncateReply enforces the transport's message-length limit, reserving
// room for the truncation marker.
func truncateReply(s string) string {
	if len(s) <= maxReplyLen {
		return s
	}
	return s[:maxReplyLen-len(truncationMarker)] + truncationMarker
}
