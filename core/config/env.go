package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EnvEntry is one env directive of a command. A nil Value is the JSON null
// removal form. Application order is significant, so entries are a slice, not
// a map.
type EnvEntry struct {
	Name  string
	Value *string
}

// Replace reports whether the entry uses the =NAME override form.
func (e EnvEntry) Replace() bool {
	return strings.HasPrefix(e.Name, "=")
}

// TargetName returns the env var name with any leading = stripped.
func (e EnvEntry) TargetName() string {
	return strings.TrimPrefix(e.Name, "=")
}

// Env is a JSON object of env directives that preserves document order.
type Env struct {
	Entries []EnvEntry
}

func (e *Env) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("decode env object: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("env must be a JSON object, found %v", token)
	}
	e.Entries = nil
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("decode env key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("env key is not a string: %v", keyToken)
		}
		var value *string
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("env value for %q must be a string or null: %w", key, err)
		}
		e.Entries = append(e.Entries, EnvEntry{Name: key, Value: value})
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("decode env object close: %w", err)
	}
	return nil
}

func (e Env) MarshalJSON() ([]byte, error) {
	encoded := &bytes.Buffer{}
	encoded.WriteByte('{')
	for index, entry := range e.Entries {
		if index > 0 {
			encoded.WriteByte(',')
		}
		encodedKey, err := json.Marshal(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("encode env key %q: %w", entry.Name, err)
		}
		encoded.Write(encodedKey)
		encoded.WriteByte(':')
		if entry.Value == nil {
			encoded.WriteString("null")
		} else {
			encodedValue, err := json.Marshal(*entry.Value)
			if err != nil {
				return nil, fmt.Errorf("encode env value for %q: %w", entry.Name, err)
			}
			encoded.Write(encodedValue)
		}
	}
	encoded.WriteByte('}')
	return encoded.Bytes(), nil
}
