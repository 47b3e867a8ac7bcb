package safetypay

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// SystemName identifies the payment method in the registry and on orders
	SystemName = "safetypay"

	// Express token and operation activity endpoints
	sandboxExpressTokenURL    = "https://sandbox-mws2.safetypay.com/express/ws/v.3.0/Post/CreateExpressToken"
	sandboxNotificationURL    = "https://sandbox-mws2.safetypay.com/express/ws/v.3.0/Post/GetOperation"
	productionExpressTokenURL = "https://mws2.safetypay.com/express/ws/v.3.0/Post/CreateExpressToken"
	productionNotificationURL = "https://mws2.safetypay.com/express/ws/v.3.0/Post/GetOperation"

	// Default Values
	defaultMaxAttempts       = 3
	defaultExpirationMinutes = 120
	defaultLanguage          = "EN"
	defaultCurrency          = "USD"
	defaultTimeout           = 30 * time.Second
	defaultBackoffBase       = 500 * time.Millisecond
	defaultBackoffMax        = 10 * time.Second

	// a confirmed redirect page is longer than the gateway's short error answer
	fakeResultLength = 101

	// minimum age of an order before the shopper may be redirected again
	rePostProcessDelay = 5 * time.Second

	gatewayDateTimeLayout = "2006-01-02T15:04:05"
)

// Config holds the merchant settings of the payment method
type Config struct {
	APIKey                  string
	SignatureKey            string
	UseSandbox              bool
	ExpressTokenURL         string
	NotificationURL         string
	TransactionOkURL        string
	TransactionErrorURL     string
	Language                string
	CurrencyID              string
	ExpirationMinutes       int
	MaxAttempts             int
	CanGenerateNewCode      bool
	RequestTimeout          time.Duration
	BackoffBase             time.Duration
	BackoffMax              time.Duration
	AdditionalFee           decimal.Decimal
	AdditionalFeePercentage bool
}

// ConfigFromMap builds a Config from the flat settings map handed to the factory
func ConfigFromMap(conf map[string]string) (Config, error) {
	cfg := Config{
		APIKey:                  conf["apiKey"],
		SignatureKey:            conf["signatureKey"],
		UseSandbox:              conf["environment"] != "production",
		ExpressTokenURL:         conf["expressTokenUrl"],
		NotificationURL:         conf["notificationUrl"],
		TransactionOkURL:        conf["transactionOkUrl"],
		TransactionErrorURL:     conf["transactionErrorUrl"],
		Language:                conf["language"],
		CurrencyID:              conf["currencyId"],
		ExpirationMinutes:       atoiOr(conf["expirationMinutes"], 0),
		MaxAttempts:             atoiOr(conf["maxAttempts"], 0),
		CanGenerateNewCode:      conf["canGenerateNewCode"] == "true",
		RequestTimeout:          durationOr(conf["requestTimeout"], 0),
		BackoffBase:             durationOr(conf["backoffBase"], 0),
		BackoffMax:              durationOr(conf["backoffMax"], 0),
		AdditionalFeePercentage: conf["additionalFeePercentage"] == "true",
	}

	if fee := strings.TrimSpace(conf["additionalFee"]); fee != "" {
		d, err := decimal.NewFromString(fee)
		if err != nil {
			return Config{}, errors.New("safetypay: additionalFee must be a decimal")
		}
		cfg.AdditionalFee = d
	}

	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.ExpressTokenURL == "" {
		c.ExpressTokenURL = productionExpressTokenURL
		if c.UseSandbox {
			c.ExpressTokenURL = sandboxExpressTokenURL
		}
	}
	if c.NotificationURL == "" {
		c.NotificationURL = productionNotificationURL
		if c.UseSandbox {
			c.NotificationURL = sandboxNotificationURL
		}
	}
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.CurrencyID == "" {
		c.CurrencyID = defaultCurrency
	}
	if c.ExpirationMinutes <= 0 {
		c.ExpirationMinutes = defaultExpirationMinutes
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = defaultBackoffMax
		if c.BackoffMax < c.BackoffBase {
			c.BackoffMax = c.BackoffBase
		}
	}
	return c
}

// Configured reports whether the credentials needed to talk to the gateway are present
func (c Config) Configured() bool {
	return c.APIKey != "" && c.SignatureKey != ""
}

func atoiOr(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

func durationOr(s string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}
