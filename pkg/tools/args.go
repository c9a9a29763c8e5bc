package tools

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// BindArguments validates raw arguments against a descriptor's
// parameter schema: defaults are applied, required parameters are
// enforced, and values are coerced to their declared semantic types.
func BindArguments(desc *Descriptor, raw map[string]interface{}) (map[string]interface{}, error) {
	bound := make(map[string]interface{}, len(desc.Parameters))

	for _, param := range desc.Parameters {
		value, present := raw[param.Name]
		if !present || value == nil {
			if param.Default != nil {
				bound[param.Name] = param.Default
				continue
			}
			if param.Required {
				return nil, &ToolError{
					Kind:    ErrBadRequest,
					Tool:    desc.Name,
					Message: fmt.Sprintf("missing required argument %q", param.Name),
				}
			}
			continue
		}

		coerced, err := coerceValue(param.SemanticType, value)
		if err != nil {
			return nil, &ToolError{
				Kind:    ErrBadRequest,
				Tool:    desc.Name,
				Message: fmt.Sprintf("argument %q: %v", param.Name, err),
				Err:     err,
			}
		}
		bound[param.Name] = coerced
	}

	return bound, nil
}

func coerceValue(semanticType SemanticType, value interface{}) (interface{}, error) {
	switch semanticType {
	case TypeInt:
		var out int64
		if err := weakDecode(value, &out); err != nil {
			return nil, err
		}
		return out, nil
	case TypeDecimal:
		var out float64
		if err := weakDecode(value, &out); err != nil {
			return nil, err
		}
		return out, nil
	case TypeBool:
		var out bool
		if err := weakDecode(value, &out); err != nil {
			return nil, err
		}
		return out, nil
	case TypeObject:
		var out map[string]interface{}
		if err := weakDecode(value, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		// string and date travel as strings.
		var out string
		if err := weakDecode(value, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func weakDecode(input, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
