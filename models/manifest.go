package models

import "time"

// Manifest is the write-once receipt of one intake request.
type Manifest struct {
	RequestID     string              `json:"requestId"`
	Slug          string              `json:"slug"`
	ApplicationID *string             `json:"applicationId"`
	CustomerName  *string             `json:"customerName"`
	CustomerEmail *string             `json:"customerEmail,omitempty"`
	ReceivedAt    time.Time           `json:"receivedAt"`
	Files         map[string][]string `json:"files"`
	// Details lists every stored file with its label, original name and size.
	Details []StoredFile `json:"details,omitempty"`
}

// StoredFile describes one file written under a link's storage area.
type StoredFile struct {
	Category     string `json:"category"`
	Label        string `json:"label"`
	OriginalName string `json:"originalName"`
	StoredName   string `json:"storedName"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	// Path is the on-disk location; it is not part of the persisted receipt.
	Path string `json:"-"`
}
