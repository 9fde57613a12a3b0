package models

type StripeConfig struct {
	SecretKey     string `json:"-" yaml:"secret_key"`
	WebhookSecret string `json:"-" yaml:"webhook_secret"`
}
