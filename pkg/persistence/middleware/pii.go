package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
)

const mask = "***"

// DefaultPIIPatterns match e-mail addresses and runs of nine or more digits
// (phone, card and document numbers).
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	`\+?\d[\d .-]{7,}\d`,
}

type piiTurnLog struct {
	next     ports.TurnLog
	patterns []*regexp.Regexp
}

// NewPIITurnLog masks every match of patterns in turn text before it reaches
// the durable history. Recent returns the masked text.
func NewPIITurnLog(next ports.TurnLog, patternStrings []string) (ports.TurnLog, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %d: %w", i, err)
		}
		patterns[i] = re
	}
	return &piiTurnLog{next: next, patterns: patterns}, nil
}

func (m *piiTurnLog) Append(ctx context.Context, key domain.SessionKey, turns ...domain.Turn) error {
	// Copy so the caller's turns keep the original text.
	masked := make([]domain.Turn, len(turns))
	for i, t := range turns {
		for _, p := range m.patterns {
			t.Text = p.ReplaceAllString(t.Text, mask)
		}
		masked[i] = t
	}
	return m.next.Append(ctx, key, masked...)
}

func (m *piiTurnLog) Recent(ctx context.Context, key domain.SessionKey, n int) ([]domain.Turn, error) {
	return m.next.Recent(ctx, key, n)
}
