package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/domain/scoring"
)

// maxBriefRunes caps an attached brief.
const maxBriefRunes = 120

// Annotator asks a backend for a one-line reading of a single point.
type Annotator struct {
	backend Backend
	model   *scoring.Model
}

// NewAnnotator returns an Annotator. A nil model selects the default one.
func NewAnnotator(b Backend, m *scoring.Model) *Annotator {
	if m == nil {
		m = scoring.Default()
	}
	return &Annotator{backend: b, model: m}
}

// Annotate returns the brief for pt of a chart born in birthYear.
func (a *Annotator) Annotate(ctx context.Context, c chart.Chart, birthYear int, pt model.Point) (string, error) {
	digest := Digest(c, birthYear, 0, a.model)
	text, err := a.backend.Complete(ctx, BriefPrompt(digest, pt.Age, pt.Year, pt.Open, pt.Close, pt.Score))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, ErrAuth) && !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return "", err
	}
	brief := cleanBrief(text)
	if brief == "" {
		return "", fmt.Errorf("%w: empty brief", ErrParse)
	}
	return brief, nil
}

func cleanBrief(s string) string {
	var line string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		line = l
		break
	}
	s = strings.TrimSpace(strings.Trim(line, `"'“”`))
	if utf8.RuneCountInString(s) > maxBriefRunes {
		s = string([]rune(s)[:maxBriefRunes])
	}
	return s
}
