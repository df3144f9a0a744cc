package answer

import (
	"context"
	"strings"

	"github.com/Malowking/datachat/chat/adapter"
	"github.com/Malowking/datachat/core/errors"
)

// defaultSchemaTone 结构问答的默认语气与呈现规则
const defaultSchemaTone = `You are a helpful, friendly data assistant.

Style:
- Conversational
- Brief and precise
- Human-friendly naming

Important presentation rules:
- When listing tables for a user:
  - EXCLUDE system or auto-generated date tables unless the user explicitly asks for them.
  - Examples of system tables include tables used only for internal date handling
    (often with long generated names).
  - Prefer business-facing tables (facts, dimensions, entities).
- If the user explicitly asks for "all tables" or "including system tables",
  then include everything.

Grounding:
- Use ONLY what exists in the schema snapshot.
- Do NOT invent tables.`

// defaultRowsTone 行集问答的默认语气
const defaultRowsTone = `You are a helpful, friendly data assistant.

Style:
- Conversational
- Brief and precise
- Prefer short bullets when listing

Grounding:
- Do NOT invent values.
- Only use what appears in the response rows.`

// ToneConfig 答案语气配置。Enabled且文本非空白时覆盖默认语气
type ToneConfig struct {
	SchemaEnabled bool   `json:"schema_enabled"`
	Schema        string `json:"schema"`
	RowsEnabled   bool   `json:"rows_enabled"`
	Rows          string `json:"rows"`
}

// Synthesizer 答案合成器：把Schema快照或查询行集转述为自然语言回答
type Synthesizer struct{}

// NewSynthesizer 创建答案合成器
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// FromSchema 仅凭Schema快照作答（DESCRIBE路径）
func (s *Synthesizer) FromSchema(ctx context.Context, complete adapter.CompleteFunc, tone *ToneConfig, snapshot, question string) (string, error) {
	prompt := s.schemaTone(tone) + `


Schema:
` + snapshot + `

Question:
` + question + `

Answer:`

	text, err := complete(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(errors.ErrLLMCallFailed, "结构问答合成失败", err)
	}
	return strings.TrimSpace(text), nil
}

// FromRows 凭最终查询与行集作答（QUERY路径）。
// 执行失败时response是错误描述，模型照实转述而不是编造数据。
func (s *Synthesizer) FromRows(ctx context.Context, complete adapter.CompleteFunc, tone *ToneConfig, question, finalQuery, response string) (string, error) {
	if finalQuery == "" {
		finalQuery = "(no query executed)"
	}

	prompt := s.rowsTone(tone) + `

Question:
` + question + `

Final executed query:
` + finalQuery + `

Response rows:
` + response + `

Answer:`

	text, err := complete(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(errors.ErrLLMCallFailed, "行集问答合成失败", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Synthesizer) schemaTone(tone *ToneConfig) string {
	if tone != nil && tone.SchemaEnabled && strings.TrimSpace(tone.Schema) != "" {
		return strings.TrimSpace(tone.Schema)
	}
	return defaultSchemaTone
}

func (s *Synthesizer) rowsTone(tone *ToneConfig) string {
	if tone != nil && tone.RowsEnabled && strings.TrimSpace(tone.Rows) != "" {
		return strings.TrimSpace(tone.Rows)
	}
	return defaultRowsTone
}
