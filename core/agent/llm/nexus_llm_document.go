package llm

import (
	"context"

	"nexus_server/core/port/out"
)

const documentSystemPrompt = `Eres el analista de documentos de un asistente personal. El usuario sube el contenido de uno o varios archivos. Detecta riesgos, fechas límite y puntos críticos. Responde SOLO con JSON:

{
  "resumen_rapido": "qué es el documento y qué contiene, en dos frases",
  "alertas_urgentes": ["punto crítico o fecha límite 1", "punto 2"],
  "nivel_riesgo": "alto|medio|bajo"
}`

// AnalyzeDocument runs the structured pass over uploaded file content.
func (c *Client) AnalyzeDocument(ctx context.Context, content string) (*out.FileAnalysis, error) {
	resp, err := c.CompleteJSON(ctx, documentSystemPrompt, truncate(content, 12000))
	if err != nil {
		return nil, err
	}

	var result out.FileAnalysis
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.NivelRiesgo == "" {
		result.NivelRiesgo = "bajo"
	}
	return &result, nil
}
