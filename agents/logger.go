package agents

import (
	"context"
	"log/slog"

	"github.com/aixgo-dev/agentrt/agent"
)

// Logger writes every message it receives to its slog logger and replies
// with nothing. It accepts any payload.
type Logger struct {
	logger *slog.Logger
	table  *agent.Table
}

func init() {
	Register("logger", func(env Env) agent.Factory {
		return func(context.Context) (agent.Agent, error) {
			return NewLogger(env.Logger), nil
		}
	})
}

// NewLogger creates a logger agent writing to l.
func NewLogger(l *slog.Logger) *Logger {
	a := &Logger{logger: l}
	a.table = agent.HandleUnion(agent.NewTable(), a.log, agent.TypeOf[any]())
	return a
}

func (l *Logger) Handlers() *agent.Table { return l.table }
func (l *Logger) Description() string    { return "Logs every message it receives" }

func (l *Logger) log(ctx context.Context, payload any, mctx agent.MessageContext) (any, error) {
	attrs := []slog.Attr{
		slog.String("agent", mctx.Recipient.String()),
		slog.String("message_id", mctx.MessageID),
		slog.Any("payload", payload),
	}
	if mctx.Sender != nil {
		attrs = append(attrs, slog.String("sender", mctx.Sender.String()))
	}
	if mctx.Topic != nil {
		attrs = append(attrs, slog.String("topic", mctx.Topic.String()))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "message received", attrs...)
	return nil, nil
}
