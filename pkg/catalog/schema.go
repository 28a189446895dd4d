// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package catalog

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teradata-labs/crucible/pkg/types"
)

const stringArray = `{"type": "array", "items": {"type": "string"}}`

var schemas = map[Kind]string{
	KindEndpoint: `{
		"type": "object",
		"required": ["name", "connector_type"],
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"connector_type": {"type": "string", "minLength": 1},
			"uri": {"type": "string"},
			"token": {"type": "string"},
			"max_calls_per_second": {"type": "integer", "minimum": 1},
			"max_concurrency": {"type": "integer", "minimum": 1},
			"params": {"type": ["object", "null"]},
			"created_date": {"type": "string"}
		}
	}`,
	KindRecipe: `{
		"type": "object",
		"required": ["name", "datasets"],
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"tags": ` + stringArray + `,
			"categories": ` + stringArray + `,
			"datasets": {"type": "array", "minItems": 1, "items": {"type": "string"}},
			"prompt_templates": ` + stringArray + `,
			"metrics": ` + stringArray + `,
			"attack_modules": ` + stringArray + `,
			"grading_scale": {
				"type": ["object", "null"],
				"additionalProperties": {
					"type": "array",
					"items": {"type": "integer"},
					"minItems": 2,
					"maxItems": 2
				}
			}
		}
	}`,
	KindCookbook: `{
		"type": "object",
		"required": ["name", "recipes"],
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"recipes": {"type": "array", "minItems": 1, "items": {"type": "string"}}
		}
	}`,
	KindDataset: `{
		"type": "object",
		"required": ["name", "examples"],
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"examples": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["input"],
					"properties": {
						"input": {"type": "string"},
						"target": {"type": ["string", "number", "array", "null"]}
					}
				}
			}
		}
	}`,
	KindPromptTemplate: `{
		"type": "object",
		"required": ["name", "template"],
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"template": {"type": "string"}
		}
	}`,
	KindRunner: `{
		"type": "object",
		"required": ["name", "endpoints"],
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"endpoints": ` + stringArray + `,
			"database_file": {"type": "string"},
			"description": {"type": "string"}
		}
	}`,
}

var compiled = map[Kind]*gojsonschema.Schema{}

func init() {
	for kind, src := range schemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic("invalid " + string(kind) + " schema: " + err.Error())
		}
		compiled[kind] = s
	}
}

// validateDocument checks a decoded JSON document against the kind's schema.
// Kinds without a schema accept any object.
func validateDocument(kind Kind, doc any) error {
	s, ok := compiled[kind]
	if !ok {
		return nil
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return types.Validation("%s schema validation failed: %v", kind, err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return types.Validation("invalid %s: %s", kind, strings.Join(msgs, "; "))
	}
	return nil
}
