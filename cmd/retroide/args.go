package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// buildArguments applies path=value assignments to base, a JSON object.
// A value that parses as JSON (numbers, booleans, arrays, objects, null)
// is stored as such; anything else is stored as a string. Paths use sjson
// syntax, so "sourceFiles.-1=main.asm" appends to an existing array.
func buildArguments(base string, sets []string) (json.RawMessage, error) {
	doc := strings.TrimSpace(base)
	if doc == "" {
		doc = "{}"
	}
	if !gjson.Valid(doc) || !gjson.Parse(doc).IsObject() {
		return nil, fmt.Errorf("arguments must be a JSON object: %s", base)
	}

	for _, set := range sets {
		path, value, ok := strings.Cut(set, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --set %q: want path=value", set)
		}

		var err error
		if gjson.Valid(value) {
			doc, err = sjson.SetRaw(doc, path, value)
		} else {
			doc, err = sjson.Set(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", set, err)
		}
	}
	return json.RawMessage(doc), nil
}

// resultText extracts the text items of a tools/call result and whether
// the tool reported failure.
func resultText(raw []byte) (string, bool) {
	var parts []string
	for _, item := range gjson.GetBytes(raw, `content.#(type=="text")#.text`).Array() {
		parts = append(parts, item.String())
	}
	return strings.Join(parts, "\n"), gjson.GetBytes(raw, "isError").Bool()
}
