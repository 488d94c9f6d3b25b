package credential

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

func extractJSONField(raw, key string) (string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", errors.Wrap(err, "unmarshal secret json")
	}
	val, ok := m[key]
	if !ok {
		return "", errors.Errorf("key %q not present in secret", key)
	}
	return val, nil
}
