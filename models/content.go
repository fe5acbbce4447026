package models

import "time"

// Cv holds the public URLs of the four CV assets. There is at most one.
type Cv struct {
	ImageWebpFr string    `json:"imageWebpFr"`
	ImageWebpEn string    `json:"imageWebpEn"`
	PdfFr       string    `json:"pdfFr"`
	PdfEn       string    `json:"pdfEn"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message is an archived contact form submission. Email and Body are stored
// encrypted and decrypted on read.
type Message struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Body      string    `json:"message"`
	Sent      bool      `json:"send"`
	Error     *string   `json:"error"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ContactRequest struct {
	Email          string `json:"email"`
	Message        string `json:"message"`
	RecaptchaToken string `json:"recaptchaToken"`
}
