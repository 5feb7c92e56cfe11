package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request body schemas, by file stem under schemas/.
const (
	SchemaRegister          = "register"
	SchemaAlert             = "alert"
	SchemaAdvance           = "advance"
	SchemaOperationComplete = "operation_complete"
	SchemaPathfinding       = "pathfinding"
	SchemaHoldFree          = "hold_free"
	SchemaStageItem         = "stage_item"
	SchemaCreateHold        = "create_hold"
	SchemaCells             = "cells"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		schemasErr = err
		return
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		b, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			schemasErr = err
			return
		}
		url := "mem://schemas/" + e.Name()
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("schema %s: %w", e.Name(), err)
			return
		}
		names = append(names, e.Name())
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, n := range names {
		s, err := c.Compile("mem://schemas/" + n)
		if err != nil {
			schemasErr = fmt.Errorf("schema %s: %w", n, err)
			return
		}
		out[n[:len(n)-len(".schema.json")]] = s
	}
	schemas = out
}

// ValidationError reports a request body that does not match its schema.
type ValidationError struct {
	Schema string
	Err    error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %v", e.Schema, e.Err) }

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks the raw JSON body against the named schema.
func Validate(name string, body []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	s := schemas[name]
	if s == nil {
		return fmt.Errorf("unknown schema %q", name)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return &ValidationError{Schema: name, Err: err}
	}
	if err := s.Validate(v); err != nil {
		return &ValidationError{Schema: name, Err: err}
	}
	return nil
}

// DecodeValid validates body against the named schema and decodes it
// into out.
func DecodeValid(name string, body []byte, out any) error {
	if err := Validate(name, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ValidationError{Schema: name, Err: err}
	}
	return nil
}
