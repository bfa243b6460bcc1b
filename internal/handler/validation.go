package handler

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const feedbackSchema = `{
	"type": "object",
	"properties": {
		"technique":     {"type": "string"},
		"stride":        {"type": "string"},
		"cia":           {"type": "string"},
		"feedback_type": {"type": "string"},
		"sid":           {"type": "string"},
		"comment":       {"type": "string"}
	},
	"required": ["technique", "stride", "cia", "feedback_type"]
}`

const procedureSchema = `{
	"type": "object",
	"properties": {
		"technique_name":        {"type": "string"},
		"technique_description": {"type": "string"}
	},
	"required": ["technique_name", "technique_description"]
}`

// rootField is how gojsonschema names the document itself
const rootField = "(root)"

// Problem describes one invalid field of a request body
type Problem struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError reports a request body that does not match its schema
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, strings.Join(p.Loc, ".")+": "+p.Msg)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validator checks request bodies against compiled JSON schemas
type Validator struct {
	feedback  *gojsonschema.Schema
	procedure *gojsonschema.Schema
}

// NewValidator compiles the request schemas
func NewValidator() (*Validator, error) {
	feedback, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(feedbackSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid feedback schema: %w", err)
	}
	procedure, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(procedureSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid procedure schema: %w", err)
	}
	return &Validator{feedback: feedback, procedure: procedure}, nil
}

// MustNewValidator is NewValidator for schemas known to compile
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Feedback validates a feedback submission body
func (v *Validator) Feedback(body []byte) error {
	return validate(v.feedback, body)
}

// Procedure validates a procedure generation body
func (v *Validator) Procedure(body []byte) error {
	return validate(v.procedure, body)
}

func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		// Not JSON at all.
		return &ValidationError{Problems: []Problem{{
			Loc:  []string{"body"},
			Msg:  "request body is not valid JSON",
			Type: "json_invalid",
		}}}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]Problem, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		loc := []string{"body"}
		field := desc.Field()
		if desc.Type() == "required" {
			if name, ok := desc.Details()["property"].(string); ok {
				field = name
			}
		}
		if field != "" && field != rootField {
			loc = append(loc, strings.TrimPrefix(field, rootField+"."))
		}
		problems = append(problems, Problem{
			Loc:  loc,
			Msg:  desc.Description(),
			Type: desc.Type(),
		})
	}
	return &ValidationError{Problems: problems}
}
