package config

const (
	SMSProviderTwilio = "twilio"
	SMSProviderSNS    = "sns"
)

type SMSConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Provider string        `yaml:"provider"`
	Twilio   *TwilioConfig `yaml:"twilio"`
	AWS      *AWSConfig    `yaml:"aws"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
}

func loadSMSConfig() *SMSConfig {
	return &SMSConfig{
		Enabled:  getEnvAsBool("SMS_ENABLED", false),
		Provider: getEnv("SMS_PROVIDER", SMSProviderTwilio),
		Twilio: &TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		},
		AWS: &AWSConfig{
			Region: getEnv("AWS_REGION", "us-east-1"),
		},
	}
}
