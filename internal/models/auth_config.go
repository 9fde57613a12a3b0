package models

// AuthConfig configures verification of Supabase-issued access tokens
type AuthConfig struct {
	JWTSecret string `json:"-" yaml:"jwt_secret"`
	// Audience is matched against the "aud" claim when set.
	Audience string `json:"audience,omitzero" yaml:"audience"`
	Required bool   `json:"required,omitzero" yaml:"required"`
}
