package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mind-lens/api/internal/analysis"
	"mind-lens/api/internal/analysis/types"
	"mind-lens/api/internal/imagedec"
	"mind-lens/api/internal/prompt"
	"mind-lens/api/internal/util"
)

const Temperature float32 = 0.2

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Engine struct {
	model  string
	system string
	client *genai.Client

	newModel func() contentGenerator
}

type Option func(*Engine)

// WithSystemInstruction подменяет встроенную системную инструкцию (например, из PROMPT_DIR).
func WithSystemInstruction(s string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(s) != "" {
			e.system = s
		}
	}
}

// New создаёт клиента один раз на процесс. Close освобождает соединения.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	e := &Engine{
		model:  strings.TrimSpace(model),
		system: prompt.SystemInstruction,
		client: cl,
	}
	for _, o := range opts {
		o(e)
	}
	e.newModel = func() contentGenerator {
		m := cl.GenerativeModel(e.model)
		e.configure(m)
		return m
	}
	return e, nil
}

func (e *Engine) Name() string  { return "gemini" }
func (e *Engine) Model() string { return e.model }

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Analyze делает ровно один вызов модели, без ретраев.
func (e *Engine) Analyze(ctx context.Context, persona string, images []imagedec.Image) (analysis.Result, error) {
	if strings.TrimSpace(persona) == "" || len(images) == 0 {
		return analysis.Result{}, analysis.ErrInvalidInput
	}

	resp, err := e.newModel().GenerateContent(ctx, buildParts(persona, images)...)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("%w: gemini: %w", analysis.ErrExternalCall, err)
	}
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return analysis.Result{}, fmt.Errorf("%w: gemini: prompt blocked: %s", analysis.ErrExternalCall, resp.PromptFeedback.BlockReason)
	}
	txt := candidateText(resp)
	if strings.TrimSpace(txt) == "" {
		return analysis.Result{}, fmt.Errorf("%w: gemini: empty response", analysis.ErrExternalCall)
	}
	return parseOutput(txt)
}

func (e *Engine) configure(m *genai.GenerativeModel) {
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(e.system)},
	}
	m.SafetySettings = safetySettings()
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}
}

// Блокируем только high: на детских рисунках medium срабатывает слишком часто.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockOnlyHigh})
	}
	return out
}

func responseSchema() *genai.Schema {
	str := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }
	strList := func() *genai.Schema { return &genai.Schema{Type: genai.TypeArray, Items: str()} }

	energy := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	for _, axis := range prompt.EnergyAxes {
		energy.Properties[axis] = &genai.Schema{Type: genai.TypeNumber}
		energy.Required = append(energy.Required, axis)
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"analysis_result": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"mind_expression":         str(),
					"persona_mind_sentence":   str(),
					"persona_energy_sentence": str(),
					"word_cloud":              strList(),
					"top_5_colors":            strList(),
					"energy_chart":            energy,
				},
				Required: []string{
					"mind_expression", "persona_mind_sentence", "persona_energy_sentence",
					"word_cloud", "top_5_colors", "energy_chart",
				},
			},
			"character_commentary": str(),
			"commentary_sections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":   str(),
						"content": str(),
					},
					Required: []string{"title", "content"},
				},
			},
		},
		Required: []string{"analysis_result", "character_commentary", "commentary_sections"},
	}
}

// buildParts: сначала текст с персоной, затем изображения в исходном порядке.
func buildParts(persona string, images []imagedec.Image) []genai.Part {
	parts := make([]genai.Part, 0, len(images)+1)
	parts = append(parts, genai.Text(prompt.UserText(persona)))
	for _, img := range images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	return parts
}

func parseOutput(txt string) (analysis.Result, error) {
	txt = util.StripCodeFences(txt)
	r, err := types.ParseResponse([]byte(txt))
	if err != nil {
		return analysis.Result{}, fmt.Errorf("gemini: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(txt)); err != nil {
		return analysis.Result{}, fmt.Errorf("gemini: %w: %v", analysis.ErrSchemaMismatch, err)
	}
	return analysis.Result{Response: r, Raw: buf.Bytes()}, nil
}

// candidateText склеивает текстовые части первого кандидата с контентом.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
