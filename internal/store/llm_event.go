package store

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEvent is a stored LLM request.
type LLMEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsage aggregates calls by purpose or by model; the other key is empty.
type LLMUsage struct {
	Purpose      string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// EventRepo records and queries LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error)

	// GetLLMEvent returns one event; a missing ID wraps ErrNotFound.
	GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)
}

// eventRepo implements EventRepo on the llm_request_events table.
type eventRepo struct {
	s *Store
}

var llmEventColumns = []string{
	"id", "sequence", "created_at", "provider", "model", "purpose",
	"input_tokens", "output_tokens", "latency_ms", "success",
	"error_message", "request_body", "response_body",
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	return r.s.withTx(ctx, func(tx dialect.Tx) error {
		seq, err := r.s.seq.Next(ctx, tx)
		if err != nil {
			return err
		}
		query, args := builder().Insert("llm_request_events").
			Columns(llmEventColumns[1:]...).
			Values(seq, millis(time.Now()), data.Provider, data.Model, data.Purpose,
				data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success,
				data.ErrorMessage, data.RequestBody, data.ResponseBody).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("save LLM request event: %w", err)
		}
		return nil
	})
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error) {
	sel := builder().Select(llmEventColumns...).
		From(entsql.Table("llm_request_events")).
		OrderBy(entsql.Desc("sequence"))
	if ps := opts.predicates("created_at"); len(ps) > 0 {
		sel.Where(entsql.And(ps...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()
	return r.scanEvents(ctx, query, args)
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error) {
	query, args := builder().Select(llmEventColumns...).
		From(entsql.Table("llm_request_events")).
		Where(entsql.EQ("id", id)).
		Query()
	events, err := r.scanEvents(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("llm event %d: %w", id, ErrNotFound)
	}
	return &events[0], nil
}

func (r *eventRepo) scanEvents(ctx context.Context, query string, args []any) ([]LLMEvent, error) {
	var out []LLMEvent
	err := scanAll(ctx, r.s.drv, query, args, func(rows *entsql.Rows) error {
		var (
			e       LLMEvent
			at      int64
			success int
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &at, &e.Provider, &e.Model, &e.Purpose,
			&e.InputTokens, &e.OutputTokens, &e.LatencyMs, &success,
			&e.ErrorMessage, &e.RequestBody, &e.ResponseBody); err != nil {
			return err
		}
		e.Timestamp = fromMillis(at)
		e.Success = success != 0
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	return out, nil
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error) {
	return r.usage(ctx, "purpose", func(u *LLMUsage, key string) { u.Purpose = key })
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]LLMUsage, error) {
	return r.usage(ctx, "model", func(u *LLMUsage, key string) { u.Model = key })
}

// usage groups by a fixed column name; col is never user input.
func (r *eventRepo) usage(ctx context.Context, col string, setKey func(*LLMUsage, string)) ([]LLMUsage, error) {
	query := fmt.Sprintf(`SELECT %[1]s, COUNT(*), SUM(input_tokens), SUM(output_tokens), CAST(AVG(latency_ms) AS INTEGER)
		FROM llm_request_events GROUP BY %[1]s ORDER BY %[1]s`, col)
	var out []LLMUsage
	err := scanAll(ctx, r.s.drv, query, []any{}, func(rows *entsql.Rows) error {
		var (
			u   LLMUsage
			key string
		)
		if err := rows.Scan(&key, &u.Calls, &u.InputTokens, &u.OutputTokens, &u.AvgLatencyMs); err != nil {
			return err
		}
		setKey(&u, key)
		out = append(out, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query LLM usage by %s: %w", col, err)
	}
	return out, nil
}
