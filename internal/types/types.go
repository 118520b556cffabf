package types

import "time"

// Submission is the web-form payload sent by the client app.
type Submission struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	CountryCode string `json:"countryCode"`
	CountryName string `json:"countryName"`
	Phone       string `json:"phone"`
	Note        string `json:"note"`
	EmailTo     string `json:"emailTo"`
}

// AppContext is the verified App Check attestation of the calling app. A nil
// *AppContext means the caller is not attested.
type AppContext struct {
	AppID     string    `json:"appId"`
	Token     string    `json:"-"`
	IssuedAt  time.Time `json:"issuedAt,omitzero"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

type SendResult struct {
	Provider  string
	MessageID string
}

type Acknowledgement struct {
	Acknowledge bool `json:"acknowledge"`
}
