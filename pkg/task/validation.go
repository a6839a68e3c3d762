package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxTitleLength is the longest title accepted, in characters after trimming
const MaxTitleLength = 200

// Client-facing validation messages
const (
	MsgInvalidJSON      = "Invalid JSON body"
	MsgInvalidTitle     = "Invalid task title"
	MsgInvalidCompleted = "Invalid completed status"
	MsgEmptyUpdate      = "Request must include title or completed"
)

const createSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["title"],
	"properties": {
		"title": {"type": "string"}
	}
}`

const updateSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"completed": {"type": "boolean"}
	},
	"anyOf": [
		{"required": ["title"]},
		{"required": ["completed"]}
	]
}`

var (
	createSchema = mustCompileSchema("tasklist://schemas/create-task.json", createSchemaJSON)
	updateSchema = mustCompileSchema("tasklist://schemas/update-task.json", updateSchemaJSON)
)

func mustCompileSchema(url, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", url, err))
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", url, err))
	}
	return compiled
}

// ValidateTitle checks a candidate title and returns it trimmed.
// Absent titles, and titles that are empty or longer than MaxTitleLength characters
// after trimming, are rejected.
func ValidateTitle(candidate *string) (string, error) {
	if candidate == nil {
		return "", &ValidationError{Field: "title", Message: MsgInvalidTitle}
	}
	title := strings.TrimSpace(*candidate)
	n := utf8.RuneCountInString(title)
	if n == 0 || n > MaxTitleLength {
		return "", &ValidationError{Field: "title", Message: MsgInvalidTitle}
	}
	return title, nil
}

// ValidateCompleted accepts only the JSON literals true and false
func ValidateCompleted(raw json.RawMessage) (bool, error) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, &ValidationError{Field: "completed", Message: MsgInvalidCompleted}
	}
}

type createRequest struct {
	Title *string `json:"title"`
}

type updateRequest struct {
	Title     *string         `json:"title"`
	Completed json.RawMessage `json:"completed"`
}

// ParseCreateRequest validates a POST /tasks body and returns the trimmed title
func ParseCreateRequest(body []byte) (string, error) {
	if err := checkSchema(body, createSchema, MsgInvalidTitle); err != nil {
		return "", err
	}

	var req createRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", &ValidationError{Message: MsgInvalidJSON}
	}
	return ValidateTitle(req.Title)
}

// ParseUpdateRequest validates a PUT /tasks/{id} body and returns the patch to apply
func ParseUpdateRequest(body []byte) (Patch, error) {
	if err := checkSchema(body, updateSchema, MsgEmptyUpdate); err != nil {
		return Patch{}, err
	}

	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Patch{}, &ValidationError{Message: MsgInvalidJSON}
	}

	var patch Patch
	if req.Title != nil {
		title, err := ValidateTitle(req.Title)
		if err != nil {
			return Patch{}, err
		}
		patch.Title = &title
	}
	if req.Completed != nil {
		completed, err := ValidateCompleted(req.Completed)
		if err != nil {
			return Patch{}, err
		}
		patch.Completed = &completed
	}
	if patch.Empty() {
		return Patch{}, &ValidationError{Message: MsgEmptyUpdate}
	}
	return patch, nil
}

// checkSchema decodes body and validates it against schema.
// Violations on a known field map to that field's message; anything else gets fallback.
func checkSchema(body []byte, schema *jsonschema.Schema, fallback string) error {
	var doc interface{}
	if err := core.JSONDecode(body, &doc); err != nil {
		return &ValidationError{Message: MsgInvalidJSON}
	}

	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &ValidationError{Message: fallback}
	}

	fields := make(map[string]bool)
	collectSchemaFields(ve, fields)
	switch {
	case fields["title"]:
		return &ValidationError{Field: "title", Message: MsgInvalidTitle}
	case fields["completed"]:
		return &ValidationError{Field: "completed", Message: MsgInvalidCompleted}
	default:
		return &ValidationError{Message: fallback}
	}
}

func collectSchemaFields(err *jsonschema.ValidationError, fields map[string]bool) {
	if len(err.Causes) == 0 {
		field := strings.TrimPrefix(strings.TrimPrefix(err.InstanceLocation, "#"), "/")
		if i := strings.Index(field, "/"); i >= 0 {
			field = field[:i]
		}
		fields[field] = true
		return
	}
	for _, cause := range err.Causes {
		collectSchemaFields(cause, fields)
	}
}
