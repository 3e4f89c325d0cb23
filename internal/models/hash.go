package models

// HashRequest asks for the digest of Text.
type HashRequest struct {
	Algorithm string `json:"algorithm" example:"sha256"`
	Encoding  string `json:"encoding,omitempty" example:"hex"`
	Text      string `json:"text" example:"abc"`
}

// HashResponse carries a printable digest.
type HashResponse struct {
	Algorithm string `json:"algorithm"`
	Encoding  string `json:"encoding"`
	Digest    string `json:"digest"`
}
