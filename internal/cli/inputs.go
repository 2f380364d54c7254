package cli

import (
	"fmt"
	"strings"
)

// parseInputs разбирает значения --input KEY=VALUE. Значения остаются
// строками: приведение к типам делает runner по объявлению входа.
func parseInputs(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	inputs := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		inputs[key] = value
	}
	return inputs, nil
}
