// Package analysis описывает контракт внешней модели, которая превращает персону
// и набор изображений в структурированный разбор.
package analysis

import (
	"context"
	"encoding/json"
	"errors"

	"mind-lens/api/internal/analysis/types"
	"mind-lens/api/internal/imagedec"
)

var (
	ErrInvalidInput = errors.New("analysis: persona and at least one image are required")
	ErrExternalCall = errors.New("analysis: external model call failed")
	// ErrSchemaMismatch — ответ модели не JSON или не та форма.
	ErrSchemaMismatch = types.ErrSchemaMismatch
)

// Result — разобранный ответ и исходный JSON модели (уходит в хранилище как есть).
type Result struct {
	Response types.AnalysisResponse
	Raw      json.RawMessage
}

type Engine interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, persona string, images []imagedec.Image) (Result, error)
}
