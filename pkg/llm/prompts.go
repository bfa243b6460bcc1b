package llm

import (
	"strings"

	"github.com/valentinpelus/attackref/pkg/types"
)

// SystemPrompt frames every procedure generation call
const SystemPrompt = "You are a cybersecurity expert specializing in MITRE ATT&CK techniques. Provide clear, educational examples."

// DefaultProcedurePromptTemplate is the default prompt template
// Variables available: {TECHNIQUE_NAME}, {TECHNIQUE_DESCRIPTION}
const DefaultProcedurePromptTemplate = `You are a cybersecurity expert. Based on the following MITRE ATT&CK Technique description, provide a realistic and educational procedure example that demonstrates how this technique might be used in practice.

Technique: {TECHNIQUE_NAME}
Description: {TECHNIQUE_DESCRIPTION}

Please provide:
1. A brief overview of the technique's purpose
2. A step-by-step procedure example (3-5 steps) that shows how this technique could be executed
3. Common tools or methods that might be used
4. Potential indicators of this technique being used
5. Brief defensive recommendations

Keep the response educational and focused on understanding the technique for defensive purposes. Do not provide detailed attack instructions that could be misused.

Response:`

// PromptBuilder renders the procedure prompt from a template
type PromptBuilder struct {
	template string
}

// NewPromptBuilder creates a builder; an empty template selects the default
func NewPromptBuilder(template string) *PromptBuilder {
	if strings.TrimSpace(template) == "" {
		template = DefaultProcedurePromptTemplate
	}
	return &PromptBuilder{template: template}
}

// Build fills the template placeholders for one request
func (b *PromptBuilder) Build(req types.ProcedureRequest) string {
	r := strings.NewReplacer(
		"{TECHNIQUE_NAME}", req.TechniqueName,
		"{TECHNIQUE_DESCRIPTION}", req.TechniqueDescription,
	)
	return r.Replace(b.template)
}

// BuildProcedurePrompt renders the default template
func BuildProcedurePrompt(req types.ProcedureRequest) string {
	return NewPromptBuilder("").Build(req)
}
