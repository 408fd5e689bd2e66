package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/nikhilbhutani/docextract/internal/llm"
	"github.com/nikhilbhutani/docextract/internal/models"
	"github.com/nikhilbhutani/docextract/internal/prompt"
	"github.com/nikhilbhutani/docextract/pkg/tokenizer"
)

// Unrecognized is returned by Classify when the answer is not a registered type.
const Unrecognized = "unknown"

// ClassifyPrefixChars bounds how much of the text the classifier sees.
const ClassifyPrefixChars = 2000

// promptSlack absorbs the gap between the token estimate and the real tokenizer.
const promptSlack = 100

var ErrUnrecognizedType = errors.New("could not determine document type")

const classifySystem = "Eres un asistente que ayuda a analizar el tipo de fichero."

var classifyTemplate = prompt.MustParse("classify", `Aquí tienes la primera parte del texto extraído de un documento:

-----------------------------
{{text}}
-----------------------------

Determina el tipo de este documento.
Elige **solo una** opción de esta lista y responde **únicamente con esa palabra, sin ningún otro texto**:
{{options}}

Si no puedes determinar el tipo, responde únicamente: unknown.
IMPORTANTE: La respuesta debe ser solo una de las palabras anteriores. No expliques nada. No añadas texto adicional. Solo una palabra.`,
	"text", "options")

const extractSystem = "Eres un asistente que ayuda a extraer los datos de documentos en un formato JSON específico."

var extractTemplate = prompt.MustParse("extract", `{{text}}

{{instructions}}
{
{{fields}}
}
{{closing}}`, "text", "instructions", "fields", "closing")

type Options struct {
	Provider       string
	ClassifyModel  string
	ExtractModel   string
	ContextLimit   int
	ResponseTokens int
	Logger         *slog.Logger
}

// Engine classifies OCR text and extracts schema fields with a language model.
type Engine struct {
	llm      llm.Gateway
	registry *Registry
	opts     Options
	logger   *slog.Logger
}

func NewEngine(gateway llm.Gateway, registry *Registry, opts Options) *Engine {
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = 16385
	}
	if opts.ResponseTokens <= 0 {
		opts.ResponseTokens = 3000
	}
	if opts.ExtractModel == "" {
		opts.ExtractModel = "gpt-3.5-turbo"
	}
	if opts.ClassifyModel == "" {
		opts.ClassifyModel = opts.ExtractModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{llm: gateway, registry: registry, opts: opts, logger: logger}
}

func (e *Engine) Registry() *Registry { return e.registry }

// Classify returns a registered document type or Unrecognized.
func (e *Engine) Classify(ctx context.Context, text string) (string, error) {
	options := make([]string, 0, len(e.registry.Types()))
	for _, t := range e.registry.Types() {
		options = append(options, "- "+t)
	}

	query, err := classifyTemplate.Render(map[string]string{
		"text":    prefix(text, ClassifyPrefixChars),
		"options": strings.Join(options, "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("render classify prompt: %w", err)
	}

	resp, err := e.llm.Chat(ctx, llm.ChatRequest{
		Provider: e.opts.Provider,
		Model:    e.opts.ClassifyModel,
		Messages: []llm.Message{
			{Role: "system", Content: classifySystem},
			{Role: "user", Content: query},
		},
		Temperature: llm.Float(0),
		TopP:        1,
	})
	if err != nil {
		return "", fmt.Errorf("classify document: %w", err)
	}

	answer := normalizeTag(resp.Content)
	e.logger.Info("document type received from model",
		"answer", answer,
		"model", resp.Model,
		"tokens", resp.TotalTokens,
		"cost_usd", resp.CostUSD,
	)

	if docType, ok := e.registry.match(answer); ok {
		return docType, nil
	}
	return Unrecognized, nil
}

// Extract asks the model for every field of schema. A response that is empty
// or not a JSON object yields a nil map and no error.
func (e *Engine) Extract(ctx context.Context, schema *Schema, text string) (map[string]models.FieldValue, error) {
	empty, err := e.extractPrompt(schema, "")
	if err != nil {
		return nil, err
	}

	budget := e.opts.ContextLimit - tokenizer.CountTokens(empty) - e.opts.ResponseTokens - promptSlack
	if budget <= 0 {
		return nil, fmt.Errorf("prompt for %q leaves no room for document text", schema.Type)
	}

	query, err := e.extractPrompt(schema, tokenizer.TrimToTokens(text, budget))
	if err != nil {
		return nil, err
	}

	resp, err := e.llm.Chat(ctx, llm.ChatRequest{
		Provider: e.opts.Provider,
		Model:    e.opts.ExtractModel,
		Messages: []llm.Message{
			{Role: "system", Content: extractSystem},
			{Role: "user", Content: query},
		},
		Temperature: llm.Float(0),
		MaxTokens:   e.opts.ResponseTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	e.logger.Info("extraction received from model",
		"document_type", schema.Type,
		"model", resp.Model,
		"tokens", resp.TotalTokens,
		"cost_usd", resp.CostUSD,
	)

	fields, err := parseFields(schema, resp.Content)
	if err != nil {
		e.logger.Warn("unparseable extraction response", "document_type", schema.Type, "error", err)
		return nil, nil
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (e *Engine) extractPrompt(schema *Schema, text string) (string, error) {
	lines := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		lines = append(lines, fmt.Sprintf(
			`  %q: {"value": %q, "sourceText": "<fragmento exacto del documento donde aparece el dato, o cadena vacía>", "sourceSentence": "<frase u oración del documento que contiene el fragmento anterior, o cadena vacía>"}`,
			f.Name, "<"+f.Description+">"))
	}

	out, err := extractTemplate.Render(map[string]string{
		"text":         text,
		"instructions": schema.Instructions,
		"fields":       strings.Join(lines, ",\n"),
		"closing":      schema.Closing,
	})
	if err != nil {
		return "", fmt.Errorf("render extraction prompt: %w", err)
	}
	return out, nil
}

func parseFields(schema *Schema, content string) (map[string]models.FieldValue, error) {
	body := stripFences(content)
	if body == "" {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, err
	}

	out := make(map[string]models.FieldValue, len(schema.Fields))
	for _, f := range schema.Fields {
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = decodeField(v)
	}
	return out, nil
}

// decodeField accepts the evidence object as well as a bare scalar value.
func decodeField(raw json.RawMessage) models.FieldValue {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		var scalar any
		json.Unmarshal(raw, &scalar)
		return models.FieldValue{Value: stringify(scalar)}
	}

	fv := models.FieldValue{
		Value:          stringify(obj["value"]),
		SourceText:     stringify(obj["sourceText"]),
		SourceSentence: stringify(obj["sourceSentence"]),
	}
	if fv.SourceSentence == "" {
		fv.SourceSentence = stringify(obj["source_sentence"])
	}
	return fv
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	// tolerate chatter around the object
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func normalizeTag(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
