package llm

import "context"

// callLabel names what a model call is for. Purpose groups usage ("answer-review");
// Subject identifies the graded item, e.g. "<attempt>:<question>".
type callLabel struct {
	purpose string
	subject string
}

type callLabelKey struct{}

func labelFrom(ctx context.Context) callLabel {
	l, _ := ctx.Value(callLabelKey{}).(callLabel)
	return l
}

// WithPurpose labels every model call made under ctx.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	l := labelFrom(ctx)
	l.purpose = purpose
	return context.WithValue(ctx, callLabelKey{}, l)
}

// WithSubject records which attempt answer a call is about.
func WithSubject(ctx context.Context, subject string) context.Context {
	l := labelFrom(ctx)
	l.subject = subject
	return context.WithValue(ctx, callLabelKey{}, l)
}

// PurposeFrom returns the purpose label, or "unlabeled".
func PurposeFrom(ctx context.Context) string {
	if p := labelFrom(ctx).purpose; p != "" {
		return p
	}
	return "unlabeled"
}

// SubjectFrom returns the subject label; empty when unset.
func SubjectFrom(ctx context.Context) string {
	return labelFrom(ctx).subject
}
