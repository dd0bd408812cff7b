package domain

import "time"

// Subscriber is a registered webhook endpoint. Subscribers are declared in
// configuration and seeded into the store at startup.
type Subscriber struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	EndpointURL string    `json:"endpoint_url"`
	SecretKey   string    `json:"secret_key,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
