// Package provider defines the contracts shared by payment methods and the
// settlement service.
//
// # Core Concepts
//
//   - PaymentMethod: the interface a redirect payment method implements
//   - OrderService / OrderManager: the order management system, read and mutated over REST
//   - NotificationStore: persistence for pending payment notifications
//   - AuditLogger: sink for the settlement audit trail
//   - KeyedMutex: per correlation id serialization between webhook and reconciler
//
// # Registration
//
// Payment methods register a factory in init and are created by name:
//
//	import _ "github.com/mstgnz/paysettle/provider/safetypay" // Auto-registers safetypay
//
//	method, err := provider.CreateMethod("safetypay", provider.Dependencies{
//	    Store:  store,
//	    Orders: orderClient,
//	}, settings.ToMap())
//
// # Pending Notifications
//
// A PendingNotification is keyed by its lowercase canonical correlation id. Lookups
// go through the correlation id, while Update and Delete address a loaded row by ID
// so a reissued operation code can move the record to a new correlation id.
//
// # HTTP Client
//
// ProviderHTTPClient sends form, JSON or raw requests to a gateway and returns the
// body as text. Non-2xx answers are reported as *HTTPStatusError.
package provider
