package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrSchemaMismatch = errors.New("model output does not match response schema")

type CommentarySection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type AnalysisData struct {
	MindExpression        string             `json:"mind_expression"`
	PersonaMindSentence   string             `json:"persona_mind_sentence"`
	PersonaEnergySentence string             `json:"persona_energy_sentence"`
	WordCloud             []string           `json:"word_cloud"`
	Top5Colors            []string           `json:"top_5_colors"`
	EnergyChart           map[string]float64 `json:"energy_chart"`
}

// AnalysisResponse — ответ POST /api/analyze.
type AnalysisResponse struct {
	AnalysisResult      AnalysisData        `json:"analysis_result"`
	CharacterCommentary string              `json:"character_commentary"`
	CommentarySections  []CommentarySection `json:"commentary_sections"`
}

// Зеркальные структуры с указателями: отличаем отсутствующее поле (и null) от пустого значения.
type rawSection struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type rawData struct {
	MindExpression        *string              `json:"mind_expression"`
	PersonaMindSentence   *string              `json:"persona_mind_sentence"`
	PersonaEnergySentence *string              `json:"persona_energy_sentence"`
	WordCloud             *[]*string           `json:"word_cloud"`
	Top5Colors            *[]*string           `json:"top_5_colors"`
	EnergyChart           *map[string]*float64 `json:"energy_chart"`
}

type rawResponse struct {
	AnalysisResult      *rawData       `json:"analysis_result"`
	CharacterCommentary *string        `json:"character_commentary"`
	CommentarySections  *[]*rawSection `json:"commentary_sections"`
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

// ParseResponse строго разбирает текст модели. Все поля обязательны и не null,
// лишние ключи игнорируются. Любое отклонение — ErrSchemaMismatch.
func ParseResponse(raw []byte) (AnalysisResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return AnalysisResponse{}, mismatch("empty output")
	}
	var r rawResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return AnalysisResponse{}, mismatch("bad JSON: %v", err)
	}

	if r.AnalysisResult == nil {
		return AnalysisResponse{}, mismatch("analysis_result is required")
	}
	if r.CharacterCommentary == nil {
		return AnalysisResponse{}, mismatch("character_commentary is required")
	}
	if r.CommentarySections == nil {
		return AnalysisResponse{}, mismatch("commentary_sections is required")
	}

	data, err := r.AnalysisResult.convert()
	if err != nil {
		return AnalysisResponse{}, err
	}

	sections := make([]CommentarySection, 0, len(*r.CommentarySections))
	for i, s := range *r.CommentarySections {
		if s == nil {
			return AnalysisResponse{}, mismatch("commentary_sections[%d] is null", i)
		}
		if s.Title == nil {
			return AnalysisResponse{}, mismatch("commentary_sections[%d].title is required", i)
		}
		if s.Content == nil {
			return AnalysisResponse{}, mismatch("commentary_sections[%d].content is required", i)
		}
		sections = append(sections, CommentarySection{Title: *s.Title, Content: *s.Content})
	}

	return AnalysisResponse{
		AnalysisResult:      data,
		CharacterCommentary: *r.CharacterCommentary,
		CommentarySections:  sections,
	}, nil
}

func (d *rawData) convert() (AnalysisData, error) {
	var out AnalysisData
	switch {
	case d.MindExpression == nil:
		return out, mismatch("analysis_result.mind_expression is required")
	case d.PersonaMindSentence == nil:
		return out, mismatch("analysis_result.persona_mind_sentence is required")
	case d.PersonaEnergySentence == nil:
		return out, mismatch("analysis_result.persona_energy_sentence is required")
	case d.WordCloud == nil:
		return out, mismatch("analysis_result.word_cloud is required")
	case d.Top5Colors == nil:
		return out, mismatch("analysis_result.top_5_colors is required")
	case d.EnergyChart == nil:
		return out, mismatch("analysis_result.energy_chart is required")
	}

	words, err := stringList("analysis_result.word_cloud", *d.WordCloud)
	if err != nil {
		return out, err
	}
	colors, err := stringList("analysis_result.top_5_colors", *d.Top5Colors)
	if err != nil {
		return out, err
	}
	chart := make(map[string]float64, len(*d.EnergyChart))
	for k, v := range *d.EnergyChart {
		if v == nil {
			return out, mismatch("analysis_result.energy_chart.%s is null", k)
		}
		chart[k] = *v
	}

	return AnalysisData{
		MindExpression:        *d.MindExpression,
		PersonaMindSentence:   *d.PersonaMindSentence,
		PersonaEnergySentence: *d.PersonaEnergySentence,
		WordCloud:             words,
		Top5Colors:            colors,
		EnergyChart:           chart,
	}, nil
}

func stringList(field string, in []*string) ([]string, error) {
	out := make([]string, 0, len(in))
	for i, s := range in {
		if s == nil {
			return nil, mismatch("%s[%d] is null", field, i)
		}
		out = append(out, *s)
	}
	return out, nil
}
