package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/store"
)

// CallObserver is notified after every provider call, e.g. to count
// requests in metrics.
type CallObserver func(purpose, model string, latency time.Duration, err error)

// RecordingProvider stores every request and response as an LLM event.
// Storage failures are logged and never fail the call.
type RecordingProvider struct {
	inner    Provider
	events   store.EventRepo
	observe  CallObserver
	log      *zap.Logger
	provider string
}

// WithRecording wraps p so that each call is appended to events. observe
// may be nil.
func WithRecording(p Provider, providerName string, events store.EventRepo, observe CallObserver, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordingProvider{inner: p, events: events, observe: observe, log: log, provider: providerName}
}

func (l *RecordingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)
	latency := time.Since(start)

	data := store.LLMRequestEventData{
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   latency.Milliseconds(),
		Success:     err == nil,
		RequestBody: renderRequest(req),
	}
	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		if resp.Model != "" {
			data.Model = resp.Model
		}
		data.ResponseBody = string(resp.Content)
	}
	if err != nil {
		data.ErrorMessage = err.Error()
	}

	if l.observe != nil {
		l.observe(purpose, data.Model, latency, err)
	}
	if l.events != nil {
		// The caller may already be cancelled; the record is still wanted.
		if logErr := l.events.AppendLLMRequest(context.WithoutCancel(ctx), data); logErr != nil {
			l.log.Warn("failed to record LLM request",
				zap.String("purpose", purpose),
				zap.Error(logErr),
			)
		}
	}
	return resp, err
}

func (l *RecordingProvider) ModelID() string {
	return l.inner.ModelID()
}

// renderRequest flattens a request into the text shown by `llm view`.
func renderRequest(req Request) string {
	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "[system]\n%s\n\n", req.System)
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
	}
	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}
	return b.String()
}
