package entry

import (
	"strings"
	"unicode/utf8"

	"epicollect/api/internal/project"
)

const MaxTitleLength = 100

// Title builds the display title from the answers of title inputs in scope
// order. It falls back to fallback (the entry uuid) when nothing is answered.
func Title(scope []project.InputDef, answers Answers, fallback string) string {
	var parts []string
	for _, def := range scope {
		if !def.Title {
			continue
		}
		a, ok := answers[def.Ref]
		if !ok || a.WasJumped {
			continue
		}
		if text := display(def, a); text != "" {
			parts = append(parts, text)
		}
	}
	title := strings.TrimSpace(strings.Join(parts, " "))
	if title == "" {
		return fallback
	}
	return truncate(title, MaxTitleLength)
}

func display(def project.InputDef, a Answer) string {
	switch a.Kind {
	case KindMulti:
		labels := make([]string, 0, len(a.Values))
		for _, v := range a.Values {
			labels = append(labels, label(def, v))
		}
		return strings.Join(labels, ", ")
	case KindLocation, KindMedia, KindStructural:
		return ""
	default:
		return label(def, a.Value)
	}
}

func label(def project.InputDef, value string) string {
	if len(def.PossibleAnswers) == 0 {
		return value
	}
	if l, ok := def.AnswerLabel(value); ok {
		return l
	}
	return value
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
