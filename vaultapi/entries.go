package vaultapi

import (
	"context"
	"net/http"
	"net/url"
)

// Entry is an encoded vault record as returned by the service. The payload
// is opaque to the service; only clients can decode it.
type Entry struct {
	ID            string `json:"id"`
	EncryptedData string `json:"encrypted_data"`
	IV            string `json:"iv"`
	Tag           string `json:"tag"`
	Category      string `json:"category"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// NewEntry is the write shape for create and update requests.
type NewEntry struct {
	EncryptedData string `json:"encryptedData"`
	IV            string `json:"iv"`
	Tag           string `json:"tag"`
	Category      string `json:"category,omitempty"`
}

// ListEntries returns all vault entries in service order (creation time
// ascending).
func (c *Client) ListEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := c.do(ctx, http.MethodGet, "/vault/entries", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) CreateEntry(ctx context.Context, entry NewEntry) (*Entry, error) {
	var created Entry
	if err := c.do(ctx, http.MethodPost, "/vault/entries", entry, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateEntry(ctx context.Context, id string, entry NewEntry) (*Entry, error) {
	var updated Entry
	if err := c.do(ctx, http.MethodPut, "/vault/entries/"+url.PathEscape(id), entry, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/vault/entries/"+url.PathEscape(id), nil, nil)
}
