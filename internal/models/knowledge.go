package models

// KnowledgeBase represents a knowledge base in the target system
type KnowledgeBase struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RemoteFile represents an uploaded document in the target system
type RemoteFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Updated  bool   `json:"-"` // True when an existing file was overwritten
}
