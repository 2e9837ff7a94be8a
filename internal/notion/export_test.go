package notion

import "time"

// NewWithClient builds a Client over a mocked NotionClient
func NewWithClient(client NotionClient, parentPageID string, now func() time.Time) *Client {
	c := newWithClient(client, parentPageID)
	c.now = now
	return c
}
