package models

import "time"

// Link is a personalized upload link issued to one customer/application.
type Link struct {
	Slug      string    `json:"slug"`
	ID        string    `json:"id"`
	AppID     string    `json:"appId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`

	// Opaque passthrough metadata supplied by the operator.
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Rate    string `json:"rate,omitempty"`
	Payment string `json:"payment,omitempty"`
	Term    string `json:"term,omitempty"`
	Docs    string `json:"docs,omitempty"`
}

// NewLink holds the operator supplied fields of a link; the store assigns the rest.
type NewLink struct {
	AppID   string `json:"appId"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Rate    string `json:"rate,omitempty"`
	Payment string `json:"payment,omitempty"`
	Term    string `json:"term,omitempty"`
	Docs    string `json:"docs,omitempty"`
}
