package safetypay

import "github.com/mstgnz/paysettle/provider"

// Register SafetyPay with the payment method registry
func init() {
	provider.Register(SystemName, NewProvider)
}
