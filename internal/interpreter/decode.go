package interpreter

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"storepilot/internal/action"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultMinConfidence 低于该置信度的模型输出视为解释失败
const DefaultMinConfidence = 0.5

// InterpretationError 模型输出不可用：缺字段、结构错误或置信度过低
type InterpretationError struct {
	Reason string
	Err    error
}

func (e *InterpretationError) Error() string {
	if e.Err != nil {
		return "interpretation failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "interpretation failed: " + e.Reason
}

func (e *InterpretationError) Unwrap() error { return e.Err }

const schemaURL = "https://storepilot.local/schemas/interpretation.schema.json"

const interpretationSchemaTemplate = `{
  "type": "object",
  "required": ["actions", "confidence_score"],
  "properties": {
    "actions": {"type": "array", "items": {"$ref": "#/$defs/action"}},
    "summary": {"type": ["string", "null"]},
    "confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
    "clarification_needed": {
      "anyOf": [
        {"type": "null"},
        {
          "type": "object",
          "required": ["questions"],
          "properties": {
            "reason": {"type": "string"},
            "questions": {"type": "array", "items": {"type": "string"}, "minItems": 1},
            "suggestions": {"type": "array", "items": {"type": "string"}}
          }
        }
      ]
    }
  },
  "$defs": {
    "action": {
      "type": "object",
      "required": ["type", "parameters"],
      "properties": {
        "type": {"enum": %s},
        "step_number": {"type": "integer", "minimum": 1},
        "depends_on_step": {"type": ["integer", "null"], "minimum": 1},
        "requires_confirmation": {"type": "boolean"},
        "parameters": {"type": "object"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func interpretationSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		types, _ := json.Marshal(action.Types())
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(fmt.Sprintf(interpretationSchemaTemplate, types))); err != nil {
			schemaErr = fmt.Errorf("interpretation schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

type wireInterpretation struct {
	Actions             []action.Action       `json:"actions"`
	Summary             string                `json:"summary"`
	ConfidenceScore     float64               `json:"confidence_score"`
	ClarificationNeeded *action.Clarification `json:"clarification_needed"`
}

// DecodeInterpretation 校验并解码模型输出的 JSON 对象
func DecodeInterpretation(raw []byte, minConfidence float64) (*action.Interpretation, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &InterpretationError{Reason: "reply is not a JSON object", Err: err}
	}
	if err := normalizeAliases(doc); err != nil {
		return nil, err
	}

	schema, err := interpretationSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &InterpretationError{Reason: "reply does not match the action schema", Err: err}
	}

	conf, _ := doc["confidence_score"].(float64)
	if conf < minConfidence {
		return nil, &InterpretationError{Reason: fmt.Sprintf("confidence %.2f below %.2f", conf, minConfidence)}
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, &InterpretationError{Reason: "re-encode reply", Err: err}
	}
	var wire wireInterpretation
	if err := json.Unmarshal(normalized, &wire); err != nil {
		return nil, &InterpretationError{Reason: "invalid action", Err: err}
	}
	if wire.ClarificationNeeded == nil && len(wire.Actions) == 0 {
		return nil, &InterpretationError{Reason: "no actions and no clarification"}
	}
	if err := action.ValidateActions(wire.Actions); err != nil {
		return nil, &InterpretationError{Reason: "invalid action plan", Err: err}
	}

	return &action.Interpretation{
		Actions:             wire.Actions,
		Summary:             wire.Summary,
		ConfidenceScore:     wire.ConfidenceScore,
		ClarificationNeeded: wire.ClarificationNeeded,
		Source:              action.SourceAI,
	}, nil
}

var envelopeKeys = map[string]bool{
	"type": true, "step_number": true, "depends_on_step": true, "requires_confirmation": true,
}

// normalizeAliases 兼容常见的字段别名：action/actions、confidence/confidence_score、
// 以及把参数平铺在动作上的写法（要求至少带 operation）
func normalizeAliases(doc map[string]any) error {
	if _, ok := doc["actions"]; !ok {
		switch v := doc["action"].(type) {
		case []any:
			doc["actions"] = v
		case map[string]any:
			doc["actions"] = []any{v}
		case nil:
			if c, ok := doc["clarification_needed"]; ok && c != nil {
				doc["actions"] = []any{}
			} else {
				return &InterpretationError{Reason: "missing action/actions"}
			}
		default:
			return &InterpretationError{Reason: "action must be an object or a list"}
		}
	}
	delete(doc, "action")

	if _, ok := doc["confidence_score"]; !ok {
		if v, ok := doc["confidence"]; ok {
			doc["confidence_score"] = v
		}
	}
	delete(doc, "confidence")

	actions, _ := doc["actions"].([]any)
	for i, item := range actions {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := obj["parameters"]; ok {
			continue
		}
		if _, ok := obj["operation"]; !ok {
			return &InterpretationError{Reason: fmt.Sprintf("action %d has neither parameters nor operation", i+1)}
		}
		params := make(map[string]any)
		for k, v := range obj {
			if !envelopeKeys[k] {
				params[k] = v
				delete(obj, k)
			}
		}
		obj["parameters"] = params
	}
	return nil
}
