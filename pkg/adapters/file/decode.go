package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var actionType = reflect.TypeOf((*domain.Action)(nil)).Elem()

// ActionHook decodes a mapping into the domain.Action sum type.
func ActionHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != actionType {
		return data, nil
	}
	if _, ok := data.(map[string]any); !ok {
		return nil, fmt.Errorf("action must be a mapping, got %T", data)
	}
	var doc domain.ActionDoc
	if err := mapstructure.Decode(data, &doc); err != nil {
		return nil, err
	}
	return doc.Action()
}

// DecodeMap decodes a generic document (as produced by yaml.v3 or
// encoding/json into any) into out, understanding Action fields.
func DecodeMap(raw any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  ActionHook,
		ErrorUnused: true,
		Result:      out,
		TagName:     "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Decode parses every YAML document in data. A document is either a single
// automation or a mapping with an "automations" list.
func Decode(data []byte) ([]*domain.Automation, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var out []*domain.Automation
	for doc := 0; ; doc++ {
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		if raw == nil {
			continue
		}

		if list, ok := raw["automations"]; ok {
			var batch []*domain.Automation
			if err := DecodeMap(list, &batch); err != nil {
				return nil, fmt.Errorf("document %d: %w", doc, err)
			}
			out = append(out, batch...)
			continue
		}

		var a domain.Automation
		if err := DecodeMap(raw, &a); err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		out = append(out, &a)
	}
	return out, nil
}
