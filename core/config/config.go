// Package config models the lift manifest found at the tail of every scie
// and provides its deterministic JSON codec. The manifest has exactly one
// recognized top-level key, "scie"; all other top-level keys are opaque user
// metadata that round-trips untouched.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type FileType string

const (
	TypeBlob      FileType = "blob"
	TypeDirectory FileType = "directory"
	TypeZip       FileType = "zip"
	TypeTar       FileType = "tar"
	TypeTarGz     FileType = "tar.gz"
	TypeTarBz2    FileType = "tar.bz2"
	TypeTarXz     FileType = "tar.xz"
	TypeTarZst    FileType = "tar.zst"
)

// NormalizeFileType maps accepted type aliases onto the canonical set, GNU
// tar style short forms included.
func NormalizeFileType(value string) (FileType, error) {
	switch strings.ToLower(value) {
	case "blob":
		return TypeBlob, nil
	case "directory", "dir":
		return TypeDirectory, nil
	case "zip":
		return TypeZip, nil
	case "tar":
		return TypeTar, nil
	case "tar.gz", "tgz", "tar.z", "taz":
		return TypeTarGz, nil
	case "tar.bz2", "tbz2", "tbz", "tz2":
		return TypeTarBz2, nil
	case "tar.xz", "txz", "tar.lzma", "tlz":
		return TypeTarXz, nil
	case "tar.zst", "tzst":
		return TypeTarZst, nil
	default:
		return "", fmt.Errorf("unsupported file type %q", value)
	}
}

// Jump identifies the launcher embedded in a scie head.
type Jump struct {
	Size    uint64 `json:"size"`
	Version string `json:"version"`
	Hash    string `json:"hash,omitempty"`
}

// File is one payload entry of a lift manifest. Size and Hash are pointers so
// the permissive boot-pack loader can distinguish absent from zero; a scie
// tip requires both.
type File struct {
	Name         string   `json:"name"`
	Key          string   `json:"key,omitempty"`
	Size         *uint64  `json:"size,omitempty"`
	Hash         string   `json:"hash,omitempty"`
	Type         FileType `json:"type,omitempty"`
	Executable   bool     `json:"executable,omitempty"`
	EagerExtract bool     `json:"eager_extract,omitempty"`
	Source       string   `json:"source,omitempty"`
}

// PlaceholderName returns the name placeholders use to reference this file.
func (f File) PlaceholderName() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// IsArchive reports whether materializing this file produces a directory.
func (f File) IsArchive() bool {
	return f.Type != TypeBlob && f.Type != ""
}

type Command struct {
	Exe         string   `json:"exe"`
	Args        []string `json:"args,omitempty"`
	Env         *Env     `json:"env,omitempty"`
	Description string   `json:"description,omitempty"`
}

type Boot struct {
	Commands map[string]Command `json:"commands,omitempty"`
	Bindings map[string]Command `json:"bindings,omitempty"`
}

type Lift struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Base        string `json:"base,omitempty"`
	LoadDotenv  bool   `json:"load_dotenv,omitempty"`
	Files       []File `json:"files,omitempty"`
	Boot        Boot   `json:"boot"`
}

type Scie struct {
	Jump *Jump `json:"jump,omitempty"`
	Lift Lift  `json:"lift"`
}

// OtherField is a non-scie top-level manifest key, preserved in document
// order for round-tripping.
type OtherField struct {
	Key   string
	Value json.RawMessage
}

type Config struct {
	Scie  Scie
	Other []OtherField

	// RawScie holds the scie object exactly as it appeared in the parsed
	// document, for structural validation.
	RawScie json.RawMessage

	// Size is the manifest's byte length within the scie tail. It is set by
	// the reader and never serialized.
	Size int
}

// Parse decodes a lift manifest. Keys under scie are matched strictly;
// unknown ones are an error. Top-level keys other than scie are kept verbatim.
func Parse(data []byte) (*Config, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("decode lift manifest: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("lift manifest must be a JSON object, found %v", token)
	}

	parsed := &Config{}
	sawScie := false
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("decode lift manifest key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("lift manifest key is not a string: %v", keyToken)
		}
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode lift manifest value for %q: %w", key, err)
		}
		if key == "scie" {
			if sawScie {
				return nil, fmt.Errorf("lift manifest contains more than one scie key")
			}
			sawScie = true
			if err := decodeStrict(raw, &parsed.Scie); err != nil {
				return nil, fmt.Errorf("decode scie object: %w", err)
			}
			parsed.RawScie = raw
			continue
		}
		compacted := &bytes.Buffer{}
		if err := json.Compact(compacted, raw); err != nil {
			return nil, fmt.Errorf("compact lift manifest value for %q: %w", key, err)
		}
		parsed.Other = append(parsed.Other, OtherField{Key: key, Value: json.RawMessage(compacted.Bytes())})
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("decode lift manifest close: %w", err)
	}
	if err := ensureNoTrailingContent(decoder); err != nil {
		return nil, err
	}
	if !sawScie {
		return nil, fmt.Errorf("lift manifest has no scie key")
	}
	return parsed, nil
}

func decodeStrict(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return ensureNoTrailingContent(decoder)
}

func ensureNoTrailingContent(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("unexpected trailing content after JSON document")
	}
	return nil
}

// Fmt controls manifest serialization. The packed form uses a single line
// with a leading newline so `tail -1 scie` recovers the manifest.
type Fmt struct {
	Pretty          bool
	LeadingNewline  bool
	TrailingNewline bool
}

// PackedFmt is the format boot-pack embeds in assembled scies.
func PackedFmt(singleLine bool) Fmt {
	return Fmt{Pretty: !singleLine, LeadingNewline: true, TrailingNewline: true}
}

// Render serializes the manifest deterministically: the scie object first
// with fields in model order, then the preserved top-level keys in document
// order.
func (c *Config) Render(format Fmt) ([]byte, error) {
	scieRaw, err := json.Marshal(&c.Scie)
	if err != nil {
		return nil, fmt.Errorf("encode scie object: %w", err)
	}

	document := &bytes.Buffer{}
	document.WriteByte('{')
	document.WriteString(`"scie":`)
	document.Write(scieRaw)
	for _, field := range c.Other {
		document.WriteByte(',')
		encodedKey, err := json.Marshal(field.Key)
		if err != nil {
			return nil, fmt.Errorf("encode manifest key %q: %w", field.Key, err)
		}
		document.Write(encodedKey)
		document.WriteByte(':')
		document.Write(field.Value)
	}
	document.WriteByte('}')

	rendered := document.Bytes()
	if format.Pretty {
		indented := &bytes.Buffer{}
		if err := json.Indent(indented, rendered, "", "  "); err != nil {
			return nil, fmt.Errorf("indent lift manifest: %w", err)
		}
		rendered = indented.Bytes()
	}
	if format.LeadingNewline {
		rendered = append([]byte{'\n'}, rendered...)
	}
	if format.TrailingNewline {
		rendered = append(rendered, '\n')
	}
	return rendered, nil
}

// Serialize renders the manifest to writer.
func (c *Config) Serialize(writer io.Writer, format Fmt) error {
	rendered, err := c.Render(format)
	if err != nil {
		return err
	}
	if _, err := writer.Write(rendered); err != nil {
		return fmt.Errorf("write lift manifest: %w", err)
	}
	return nil
}
