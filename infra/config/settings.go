package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings are the SafetyPay merchant settings
type Settings struct {
	APIKey                  string        `yaml:"api_key" validate:"required"`
	SignatureKey            string        `yaml:"signature_key" validate:"required"`
	UseSandbox              bool          `yaml:"use_sandbox"`
	ExpressTokenURL         string        `yaml:"express_token_url" validate:"http_url"`
	NotificationURL         string        `yaml:"notification_url" validate:"http_url"`
	TransactionOkURL        string        `yaml:"transaction_ok_url" validate:"required,http_url"`
	TransactionErrorURL     string        `yaml:"transaction_error_url" validate:"required,http_url"`
	Language                string        `yaml:"language" validate:"omitempty,len=2"`
	CurrencyID              string        `yaml:"currency_id" validate:"omitempty,len=3"`
	ExpirationMinutes       int           `yaml:"expiration_minutes" validate:"gte=1"`
	MaxAttempts             int           `yaml:"max_attempts" validate:"gte=1,lte=20"`
	CanGenerateNewCode      bool          `yaml:"can_generate_new_code"`
	SyncPeriod              time.Duration `yaml:"sync_period" validate:"gte=1s"`
	RequestTimeout          time.Duration `yaml:"request_timeout"`
	BackoffBase             time.Duration `yaml:"backoff_base"`
	BackoffMax              time.Duration `yaml:"backoff_max"`
	AdditionalFee           string        `yaml:"additional_fee" validate:"omitempty,numeric"`
	AdditionalFeePercentage bool          `yaml:"additional_fee_percentage"`
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		UseSandbox:        true,
		Language:          "EN",
		CurrencyID:        "USD",
		ExpirationMinutes: 120,
		MaxAttempts:       3,
		SyncPeriod:        60 * time.Minute,
		RequestTimeout:    30 * time.Second,
		BackoffBase:       500 * time.Millisecond,
		BackoffMax:        10 * time.Second,
	}
}

// LoadSettings reads the optional YAML settings file, overlays SAFETYPAY_* environment
// variables and validates the result
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse settings file: %w", err)
		}
	}

	s.applyEnv()

	if err := App().Validator.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid safetypay settings: %w", err)
	}
	return s, nil
}

func (s *Settings) applyEnv() {
	s.APIKey = GetEnv("SAFETYPAY_API_KEY", s.APIKey)
	s.SignatureKey = GetEnv("SAFETYPAY_SIGNATURE_KEY", s.SignatureKey)
	s.UseSandbox = GetBoolEnv("SAFETYPAY_USE_SANDBOX", s.UseSandbox)
	s.ExpressTokenURL = GetEnv("SAFETYPAY_EXPRESS_TOKEN_URL", s.ExpressTokenURL)
	s.NotificationURL = GetEnv("SAFETYPAY_NOTIFICATION_URL", s.NotificationURL)
	s.TransactionOkURL = GetEnv("SAFETYPAY_TRANSACTION_OK_URL", s.TransactionOkURL)
	s.TransactionErrorURL = GetEnv("SAFETYPAY_TRANSACTION_ERROR_URL", s.TransactionErrorURL)
	s.Language = GetEnv("SAFETYPAY_LANGUAGE", s.Language)
	s.CurrencyID = GetEnv("SAFETYPAY_CURRENCY_ID", s.CurrencyID)
	s.ExpirationMinutes = GetIntEnv("SAFETYPAY_EXPIRATION_MINUTES", s.ExpirationMinutes)
	s.MaxAttempts = GetIntEnv("SAFETYPAY_MAX_ATTEMPTS", s.MaxAttempts)
	s.CanGenerateNewCode = GetBoolEnv("SAFETYPAY_CAN_GENERATE_NEW_CODE", s.CanGenerateNewCode)
	s.SyncPeriod = GetDurationEnv("SAFETYPAY_SYNC_PERIOD", s.SyncPeriod)
	s.RequestTimeout = GetDurationEnv("SAFETYPAY_REQUEST_TIMEOUT", s.RequestTimeout)
	s.BackoffBase = GetDurationEnv("SAFETYPAY_BACKOFF_BASE", s.BackoffBase)
	s.BackoffMax = GetDurationEnv("SAFETYPAY_BACKOFF_MAX", s.BackoffMax)
	s.AdditionalFee = GetEnv("SAFETYPAY_ADDITIONAL_FEE", s.AdditionalFee)
	s.AdditionalFeePercentage = GetBoolEnv("SAFETYPAY_ADDITIONAL_FEE_PERCENTAGE", s.AdditionalFeePercentage)
}

// ToMap flattens the settings into the config map handed to the payment method factory
func (s Settings) ToMap() map[string]string {
	environment := "production"
	if s.UseSandbox {
		environment = "sandbox"
	}
	return map[string]string{
		"apiKey":                  s.APIKey,
		"signatureKey":            s.SignatureKey,
		"environment":             environment,
		"expressTokenUrl":         s.ExpressTokenURL,
		"notificationUrl":         s.NotificationURL,
		"transactionOkUrl":        s.TransactionOkURL,
		"transactionErrorUrl":     s.TransactionErrorURL,
		"language":                s.Language,
		"currencyId":              s.CurrencyID,
		"expirationMinutes":       strconv.Itoa(s.ExpirationMinutes),
		"maxAttempts":             strconv.Itoa(s.MaxAttempts),
		"canGenerateNewCode":      strconv.FormatBool(s.CanGenerateNewCode),
		"requestTimeout":          s.RequestTimeout.String(),
		"backoffBase":             s.BackoffBase.String(),
		"backoffMax":              s.BackoffMax.String(),
		"additionalFee":           s.AdditionalFee,
		"additionalFeePercentage": strconv.FormatBool(s.AdditionalFeePercentage),
	}
}
