// Package enricher embeds Confluence provenance as YAML front-matter.
//
// An existing leading front-matter block is kept: its keys survive untouched
// unless the enricher writes a key of the same name. Keys with empty values
// are never written, so enriching twice yields the same block as enriching once.
package enricher

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/takak2166/confluence2openwebui/internal/models"
)

const delimiter = "---"

// Provenance keys written into the front-matter
const (
	KeySpaceKey    = "confluence_space_key"
	KeySpaceName   = "confluence_space_name"
	KeyAncestors   = "confluence_ancestors"
	KeyAuthor      = "confluence_author"
	KeyAuthorEmail = "confluence_author_email"
	KeyCreated     = "confluence_created"
	KeyUpdated     = "confluence_updated"
	KeyID          = "confluence_id"
	KeyURL         = "confluence_url"
	KeyParentID    = "confluence_parent_id"
	KeySize        = "confluence_size"
	KeyMediaType   = "confluence_media_type"
)

// Enricher merges provenance into document front-matter
type Enricher struct{}

// New creates a new Enricher
func New() *Enricher {
	return &Enricher{}
}

// EnrichPage adds page provenance to content
func (e *Enricher) EnrichPage(content string, p models.Provenance) (string, error) {
	return merge(content, commonFields(p))
}

// EnrichAttachment adds attachment provenance to content
func (e *Enricher) EnrichAttachment(content string, p models.Provenance) (string, error) {
	fields := commonFields(p)
	fields = append(fields,
		field{KeyParentID, scalar(p.ParentID)},
		field{KeySize, intScalar(p.Size)},
		field{KeyMediaType, scalar(p.MediaType)},
	)
	return merge(content, fields)
}

type field struct {
	key   string
	value *yaml.Node // nil when the value is empty
}

func commonFields(p models.Provenance) []field {
	return []field{
		{KeySpaceKey, scalar(p.SpaceKey)},
		{KeySpaceName, scalar(p.SpaceName)},
		{KeyAncestors, sequence(p.Ancestors)},
		{KeyAuthor, scalar(p.AuthorName)},
		{KeyAuthorEmail, scalar(p.AuthorEmail)},
		{KeyCreated, timestamp(p.Created)},
		{KeyUpdated, timestamp(p.Updated)},
		{KeyID, scalar(p.ItemID)},
		{KeyURL, scalar(p.URL)},
	}
}

// FormatTime renders timestamps in the canonical form written to front-matter
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func scalar(v string) *yaml.Node {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func intScalar(v int64) *yaml.Node {
	if v <= 0 {
		return nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v, 10)}
}

func timestamp(t time.Time) *yaml.Node {
	if t.IsZero() {
		return nil
	}
	return scalar(FormatTime(t))
}

func sequence(values []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		if n := scalar(v); n != nil {
			seq.Content = append(seq.Content, n)
		}
	}
	if len(seq.Content) == 0 {
		return nil
	}
	return seq
}

func merge(content string, fields []field) (string, error) {
	mapping, body := split(content)
	if mapping == nil {
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		body = "\n" + content
	}

	for _, f := range fields {
		if f.value == nil {
			continue
		}
		set(mapping, f.key, f.value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(mapping); err != nil {
		return "", fmt.Errorf("failed to encode front-matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode front-matter: %w", err)
	}

	return delimiter + "\n" + buf.String() + delimiter + "\n" + body, nil
}

func set(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

// split separates a leading front-matter mapping from the body. It returns a
// nil mapping when content has no valid leading block.
func split(content string) (*yaml.Node, string) {
	first, rest, ok := cutLine(content)
	if !ok || first != delimiter {
		return nil, content
	}

	var block strings.Builder
	for {
		line, remaining, found := cutLine(rest)
		if !found && line == "" {
			return nil, content // Unterminated block
		}
		if line == delimiter || line == "..." {
			rest = remaining
			break
		}
		block.WriteString(line)
		block.WriteString("\n")
		rest = remaining
		if !found {
			return nil, content
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block.String()), &doc); err != nil {
		return nil, content
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, rest
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, content
	}
	return mapping, rest
}

// cutLine returns the first line without its terminator
func cutLine(s string) (line, rest string, found bool) {
	line, rest, found = strings.Cut(s, "\n")
	return strings.TrimSuffix(line, "\r"), rest, found
}

// Parse returns the decoded front-matter and the body below it. A document
// without front-matter yields an empty map and the whole content.
func Parse(content string) (map[string]interface{}, string, error) {
	mapping, body := split(content)
	out := make(map[string]interface{})
	if mapping == nil {
		return out, content, nil
	}
	if err := mapping.Decode(&out); err != nil {
		return nil, "", fmt.Errorf("failed to decode front-matter: %w", err)
	}
	return out, body, nil
}
