package entity

import (
	"fmt"
	"strconv"
)

// SourceType tags where a chunk came from. Domain declarations add their
// own tags (e.g. "nba_data"); the constants below are the ones the core
// itself gives meaning to.
type SourceType string

const (
	SourceTypeFile     SourceType = "file"
	SourceTypeURL      SourceType = "url"
	SourceTypeOverride SourceType = "override"
)

// ChunkMetadata is the typed view of a chunk's metadata. Known keys get
// fields; everything else is carried in Extra so nothing a store returns
// is lost on the way through the pipeline.
type ChunkMetadata struct {
	Source     string
	SourceType SourceType
	IsOverride bool
	Priority   int
	Timestamp  string
	Extra      map[string]string
}

// ChunkMetadataFromMap lifts a raw store metadata mapping into the typed
// form. Unknown keys land in Extra, stringified.
func ChunkMetadataFromMap(raw map[string]interface{}) ChunkMetadata {
	meta := ChunkMetadata{}
	for key, value := range raw {
		switch key {
		case "source":
			meta.Source = toString(value)
		case "source_type":
			meta.SourceType = SourceType(toString(value))
		case "is_override":
			meta.IsOverride = toBool(value)
		case "priority":
			meta.Priority = toInt(value)
		case "timestamp":
			meta.Timestamp = toString(value)
		default:
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra[key] = toString(value)
		}
	}
	return meta
}

// ToMap flattens the typed metadata back into the raw mapping stores
// persist. Inverse of ChunkMetadataFromMap for the known keys.
func (m ChunkMetadata) ToMap() map[string]interface{} {
	raw := make(map[string]interface{}, 5+len(m.Extra))
	if m.Source != "" {
		raw["source"] = m.Source
	}
	if m.SourceType != "" {
		raw["source_type"] = string(m.SourceType)
	}
	if m.IsOverride {
		raw["is_override"] = true
	}
	if m.Priority != 0 {
		raw["priority"] = m.Priority
	}
	if m.Timestamp != "" {
		raw["timestamp"] = m.Timestamp
	}
	for key, value := range m.Extra {
		raw[key] = value
	}
	return raw
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// Chunk is one retrieved piece of knowledge. Produced only by the
// retriever; read-only downstream.
type Chunk struct {
	id       string
	content  string
	metadata ChunkMetadata
	distance float64
}

// NewChunk builds a chunk. Distance is clamped to be non-negative
// (smaller = closer).
func NewChunk(id, content string, metadata ChunkMetadata, distance float64) (*Chunk, error) {
	if id == "" {
		return nil, ErrInvalidChunkID
	}
	if distance < 0 {
		distance = 0
	}
	return &Chunk{id: id, content: content, metadata: metadata, distance: distance}, nil
}

// ID returns the opaque chunk id.
func (c *Chunk) ID() string { return c.id }

// Content returns the chunk text.
func (c *Chunk) Content() string { return c.content }

// Metadata returns the typed metadata.
func (c *Chunk) Metadata() ChunkMetadata { return c.metadata }

// Distance returns the similarity distance (non-negative, smaller = closer).
func (c *Chunk) Distance() float64 { return c.distance }

// IsOverride reports whether this chunk is an override directive.
func (c *Chunk) IsOverride() bool { return c.metadata.IsOverride }

// Source returns the metadata source field.
func (c *Chunk) Source() string { return c.metadata.Source }
