package models

import "time"

// ItemKind distinguishes pages from attachments
type ItemKind string

const (
	KindPage       ItemKind = "page"
	KindAttachment ItemKind = "attachment"
)

// ContentItem represents a page or attachment collected from Confluence
type ContentItem struct {
	ID        string   `json:"id"`
	Kind      ItemKind `json:"kind"`
	Title     string   `json:"title"`
	SpaceKey  string   `json:"space_key"`
	Size      int64    `json:"size,omitempty"`       // Attachments only, 0 when unknown
	MediaType string   `json:"media_type,omitempty"` // Attachments only
	ParentID  string   `json:"parent_id,omitempty"`  // Attachments only
	Path      string   `json:"path,omitempty"`       // Rendered content on local disk
}

// IsAttachment reports whether the item is an attachment
func (i ContentItem) IsAttachment() bool {
	return i.Kind == KindAttachment
}

// Space describes a source container
type Space struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	URL  string `json:"url"` // Canonical web link
}

// DisplayName returns the space name, falling back to its key
func (s Space) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Key
}

// ContainerGroup holds the items of one space in collection order
type ContainerGroup struct {
	SpaceKey string
	Items    []ContentItem
}

// Pages returns the group's pages in collection order
func (g ContainerGroup) Pages() []ContentItem {
	return g.filter(KindPage)
}

// Attachments returns the group's attachments in collection order
func (g ContainerGroup) Attachments() []ContentItem {
	return g.filter(KindAttachment)
}

func (g ContainerGroup) filter(kind ItemKind) []ContentItem {
	var out []ContentItem
	for _, item := range g.Items {
		if item.Kind == kind {
			out = append(out, item)
		}
	}
	return out
}

// GroupBySpace partitions items by space key. Groups are ordered by the first
// appearance of their space and items keep their relative order.
func GroupBySpace(items []ContentItem) []ContainerGroup {
	index := make(map[string]int)
	var groups []ContainerGroup
	for _, item := range items {
		i, ok := index[item.SpaceKey]
		if !ok {
			i = len(groups)
			index[item.SpaceKey] = i
			groups = append(groups, ContainerGroup{SpaceKey: item.SpaceKey})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// Provenance holds facts about where an item came from
type Provenance struct {
	SpaceKey    string
	SpaceName   string
	Ancestors   []string
	AuthorName  string
	AuthorEmail string
	Created     time.Time
	Updated     time.Time
	ItemID      string
	URL         string

	// Attachment-only facts
	ParentID  string
	Size      int64
	MediaType string
}
