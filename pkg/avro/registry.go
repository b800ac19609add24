package avro

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	havro "github.com/hamba/avro/v2"
	"github.com/riferrei/srclient"
	"golang.org/x/sync/singleflight"
)

// Constants for Confluent wire format
const (
	confluentWireFormatHeaderSize = 5 // Magic byte (1) + Schema ID (4)
	maxSchemaID                   = 0xFFFFFFFF
)

// ErrInvalidWireFormat is returned for payloads without the magic byte and
// schema id prefix.
var ErrInvalidWireFormat = errors.New("invalid wire format: missing magic byte or too short")

// Registry is the part of a schema registry client the codec needs.
// *srclient.SchemaRegistryClient satisfies it.
type Registry interface {
	GetLatestSchema(subject string) (*srclient.Schema, error)
	GetSchema(schemaID int) (*srclient.Schema, error)
	CreateSchema(subject string, schema string, schemaType srclient.SchemaType, references ...srclient.Reference) (*srclient.Schema, error)
}

// schemaEntry holds the parsed schema and its schema ID.
type schemaEntry struct {
	schemaID int
	schema   havro.Schema
}

// Codec encodes and decodes Confluent wire-format payloads, caching parsed
// schemas by subject and by id. It is safe for concurrent use.
type Codec struct {
	client Registry

	bySubject    sync.Map // map[string]schemaEntry
	byID         sync.Map // map[int]havro.Schema
	singleFlight singleflight.Group
}

// NewCodec wraps a registry client.
func NewCodec(client Registry) *Codec {
	return &Codec{client: client}
}

// NewRegistryCodec connects to the schema registry at url.
func NewRegistryCodec(url string) *Codec {
	return NewCodec(srclient.CreateSchemaRegistryClient(url))
}

// Register makes sure subject holds schemaJSON and returns the schema id and
// parsed schema. An existing schema that differs is kept and returned;
// matches reports whether it was equal after normalization.
func (c *Codec) Register(subject, schemaJSON string) (id int, s havro.Schema, matches bool, err error) {
	registered, matches, err := CreateSchemaIfNotExists(c.client, subject, schemaJSON, srclient.Avro)
	if err != nil {
		return 0, nil, false, fmt.Errorf("register schema %s: %w", subject, err)
	}

	parsed, err := havro.Parse(registered.Schema())
	if err != nil {
		return 0, nil, false, fmt.Errorf("parse schema %s: %w", subject, err)
	}
	c.bySubject.Store(subject, schemaEntry{schemaID: registered.ID(), schema: parsed})
	c.byID.Store(registered.ID(), parsed)
	return registered.ID(), parsed, matches, nil
}

// schemaForSubject fetches and caches the latest schema for a subject.
func (c *Codec) schemaForSubject(subject string) (int, havro.Schema, error) {
	if v, ok := c.bySubject.Load(subject); ok {
		se := v.(schemaEntry)
		return se.schemaID, se.schema, nil
	}
	val, err, _ := c.singleFlight.Do(subject, func() (any, error) {
		schemaMeta, err := c.client.GetLatestSchema(subject)
		if err != nil {
			return nil, fmt.Errorf("fetch schema %s: %w", subject, err)
		}
		parsed, err := havro.Parse(schemaMeta.Schema())
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", subject, err)
		}
		se := schemaEntry{schemaID: schemaMeta.ID(), schema: parsed}
		c.bySubject.Store(subject, se)
		c.byID.Store(schemaMeta.ID(), parsed)
		return se, nil
	})
	if err != nil {
		return 0, nil, err
	}
	se := val.(schemaEntry)
	return se.schemaID, se.schema, nil
}

// schemaForID fetches and caches a schema by its ID.
func (c *Codec) schemaForID(schemaID int) (havro.Schema, error) {
	if v, ok := c.byID.Load(schemaID); ok {
		return v.(havro.Schema), nil
	}
	val, err, _ := c.singleFlight.Do(fmt.Sprintf("id:%d", schemaID), func() (any, error) {
		schemaMeta, err := c.client.GetSchema(schemaID)
		if err != nil {
			return nil, fmt.Errorf("fetch schema ID %d: %w", schemaID, err)
		}
		parsed, err := havro.Parse(schemaMeta.Schema())
		if err != nil {
			return nil, fmt.Errorf("parse schema ID %d: %w", schemaID, err)
		}
		c.byID.Store(schemaID, parsed)
		return parsed, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(havro.Schema), nil
}

// Encode turns a dataset row into a Confluent-wire payload using the latest
// schema of subject.
func (c *Codec) Encode(subject string, row map[string]any) ([]byte, error) {
	schemaID, s, err := c.schemaForSubject(subject)
	if err != nil {
		return nil, fmt.Errorf("get schema for %s: %w", subject, err)
	}

	native := row
	if rs, ok := s.(*havro.RecordSchema); ok {
		if native, err = NativeRecord(rs, row); err != nil {
			return nil, fmt.Errorf("normalize for %s: %w", subject, err)
		}
	}

	binaryData, err := havro.Marshal(s, native)
	if err != nil {
		return nil, fmt.Errorf("marshal for %s: %w", subject, err)
	}
	return frame(schemaID, binaryData)
}

// Decode reads a Confluent-wire payload back into a map.
func (c *Codec) Decode(payload []byte) (map[string]any, error) {
	schemaID, body, err := unframe(payload)
	if err != nil {
		return nil, err
	}
	s, err := c.schemaForID(schemaID)
	if err != nil {
		return nil, fmt.Errorf("get schema for ID %d: %w", schemaID, err)
	}
	var out map[string]any
	if err := havro.Unmarshal(s, body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal for ID %d: %w", schemaID, err)
	}
	return out, nil
}

// frame prepends the magic byte and schema ID.
func frame(schemaID int, body []byte) ([]byte, error) {
	if schemaID < 0 || schemaID > maxSchemaID {
		return nil, fmt.Errorf("schema ID %d out of uint32 range", schemaID)
	}
	out := make([]byte, confluentWireFormatHeaderSize+len(body))
	out[0] = 0
	binary.BigEndian.PutUint32(out[1:confluentWireFormatHeaderSize], uint32(schemaID))
	copy(out[confluentWireFormatHeaderSize:], body)
	return out, nil
}

func unframe(payload []byte) (int, []byte, error) {
	if len(payload) < confluentWireFormatHeaderSize || payload[0] != 0 {
		return 0, nil, ErrInvalidWireFormat
	}
	return int(binary.BigEndian.Uint32(payload[1:confluentWireFormatHeaderSize])), payload[confluentWireFormatHeaderSize:], nil
}

// CreateSchemaIfNotExists returns the latest schema of subject, creating it
// from schemaJSON when the subject is empty. matches reports whether an
// existing schema equals schemaJSON after normalization; a differing schema
// is returned as is rather than registering a new version.
func CreateSchemaIfNotExists(
	client Registry,
	subject, schemaJSON string,
	schemaType srclient.SchemaType,
) (*srclient.Schema, bool, error) {
	existingSchema, err := client.GetLatestSchema(subject)
	if err != nil || existingSchema == nil {
		created, err := client.CreateSchema(subject, schemaJSON, schemaType)
		return created, err == nil, err
	}

	if existingSchema.Schema() == schemaJSON {
		return existingSchema, true, nil
	}
	existingNormalized, err := normalizeSchemaJSON(existingSchema.Schema())
	if err != nil {
		return existingSchema, false, nil
	}
	newNormalized, err := normalizeSchemaJSON(schemaJSON)
	if err != nil {
		return nil, false, fmt.Errorf("invalid schema for %s: %w", subject, err)
	}
	return existingSchema, existingNormalized == newNormalized, nil
}

// normalizeSchemaJSON normalizes a JSON schema string by parsing and re-marshaling
// to ensure consistent field ordering for comparison.
func normalizeSchemaJSON(schemaJSON string) (string, error) {
	var parsed any
	if err := jsonStd.Unmarshal([]byte(schemaJSON), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	normalizedJSON, err := jsonStd.Marshal(normalizeSchemaStructure(parsed))
	if err != nil {
		return "", fmt.Errorf("failed to marshal normalized schema: %w", err)
	}
	return string(normalizedJSON), nil
}

// normalizeSchemaStructure recursively normalizes Avro schema structures to ensure
// consistent field ordering and canonical representation.
func normalizeSchemaStructure(node any) any {
	switch s := node.(type) {
	case map[string]any:
		normalized := make(map[string]any, len(s))
		for k, v := range s {
			normalized[k] = normalizeSchemaStructure(v)
		}
		if fields, ok := normalized["fields"].([]any); ok {
			sort.SliceStable(fields, func(i, j int) bool {
				return fieldName(fields[i]) < fieldName(fields[j])
			})
		}
		return normalized
	case []any:
		normalized := make([]any, len(s))
		for i, item := range s {
			normalized[i] = normalizeSchemaStructure(item)
		}
		return normalized
	default:
		return s
	}
}

func fieldName(f any) string {
	if m, ok := f.(map[string]any); ok {
		name, _ := m["name"].(string)
		return name
	}
	return ""
}
