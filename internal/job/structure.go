package job

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Structure is the intermediate presentation layout produced by analysis
// and revised during interactive editing. It is validated once, where it
// is produced; everything downstream trusts the type.
type Structure struct {
	Title  string  `json:"title"`
	Slides []Slide `json:"slides"`
}

type Slide struct {
	Title        string   `json:"title"`
	BulletPoints []string `json:"bullet_points"`
	ImageTheme   string   `json:"image_theme,omitempty"`
}

// TotalSlides includes the title slide rendered in front of the content slides.
func (s Structure) TotalSlides() int { return len(s.Slides) + 1 }

const structureSchema = `{
  "type": "object",
  "required": ["title", "slides"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "slides": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "bullet_points"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "bullet_points": {
            "type": "array",
            "items": {"type": "string"}
          },
          "image_theme": {"type": "string"}
        }
      }
    }
  }
}`

var structureSchemaLoader = gojsonschema.NewStringLoader(structureSchema)

// ParseStructure validates raw JSON against the structure schema and decodes it.
func ParseStructure(raw []byte) (Structure, error) {
	result, err := gojsonschema.Validate(structureSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Structure{}, fmt.Errorf("structure validate: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Structure{}, fmt.Errorf("structure invalid: %s", strings.Join(msgs, "; "))
	}

	var s Structure
	if err := json.Unmarshal(raw, &s); err != nil {
		return Structure{}, fmt.Errorf("structure decode: %w", err)
	}
	return s, nil
}

// ExtractJSONBlock pulls the payload out of a model reply. Models tend to
// wrap JSON in a fenced block; fall back to the first '{'..'}' span.
func ExtractJSONBlock(reply string) string {
	if i := strings.Index(reply, "```json"); i >= 0 {
		rest := reply[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	if i := strings.Index(reply, "```"); i >= 0 {
		rest := reply[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start >= 0 && end > start {
		return reply[start : end+1]
	}
	return strings.TrimSpace(reply)
}
