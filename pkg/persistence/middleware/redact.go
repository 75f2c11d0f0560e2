package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

// DefaultSecretPatterns match credentials that tool output commonly leaks
// into error messages: passwords in URLs and key=value tokens.
var DefaultSecretPatterns = []string{
	`(?i)(://[^:/@\s]+:)[^@\s]+(@)`,
	`(?i)((?:password|passwd|secret|token|api[_-]?key)\s*[=:]\s*)\S+`,
}

type redactionMiddleware struct {
	next     ports.RunStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware masks matches of patterns in the error messages of a
// run before it is persisted. Capture groups 1 and 2, when present, are kept
// around the mask.
func NewRedactionMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.RunStore) ports.RunStore {
		return &redactionMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactionMiddleware) Save(ctx context.Context, run *domain.RunRecord) error {
	// The executor keeps using its record, so mask a copy.
	cloned := *run
	cloned.Tasks = append([]string(nil), run.Tasks...)
	cloned.Results = append([]domain.TaskResult(nil), run.Results...)

	cloned.Error = m.mask(cloned.Error)
	for i := range cloned.Results {
		cloned.Results[i].Error = m.mask(cloned.Results[i].Error)
	}
	return m.next.Save(ctx, &cloned)
}

func (m *redactionMiddleware) Load(ctx context.Context, runID string) (*domain.RunRecord, error) {
	return m.next.Load(ctx, runID)
}

func (m *redactionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactionMiddleware) mask(s string) string {
	if s == "" {
		return s
	}
	for _, p := range m.patterns {
		s = p.ReplaceAllStringFunc(s, func(match string) string {
			sub := p.FindStringSubmatch(match)
			switch len(sub) {
			case 0, 1:
				return Mask
			case 2:
				return sub[1] + Mask
			default:
				return sub[1] + Mask + sub[2]
			}
		})
	}
	return s
}
