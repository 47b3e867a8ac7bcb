// Package handler provides the HTTP handlers of the settlement service.
//
// # Notification Handler
//
// NotificationHandler receives SafetyPay payment notifications. It always answers
// 200 OK so the gateway does not retry on local failures; the body is a signed
// flat acknowledgement when the notification signature is valid and empty otherwise.
//
//	r.Post("/notifications/safetypay", notificationHandler.HandleNotification)
//
// Each request performs exactly one store mutation for its correlation id and
// concurrent deliveries for the same id are serialized.
//
// # Admin Handler
//
// AdminHandler serves the authenticated /v1 API:
//
//	GET  /v1/method
//	GET  /v1/notifications
//	GET  /v1/notifications/{correlationID}
//	GET  /v1/notifications/{correlationID}/history
//	GET  /v1/audit/stats?hours=24
//	POST /v1/reconcile
//	POST /v1/payments
//	POST /v1/payments/{orderGuid}/redirect
//
// A manual reconcile shares the scheduler's run guard and returns 409 Conflict
// while a run is in progress.
//
// # Health Handler
//
// HealthHandler reports the store as a critical dependency. The order service
// and OpenSearch only degrade the status:
//
//	{
//	  "status": "healthy",
//	  "services": {"store": {"status": "healthy"}},
//	  "scheduler": {"name": "safetypay-reconcile", "running": false}
//	}
//
// # HTTP Status Codes
//
//   - 200 OK: Successful operation
//   - 400 Bad Request: Invalid request format or validation error
//   - 401 Unauthorized: Missing or invalid API key
//   - 404 Not Found: Notification or order not found
//   - 409 Conflict: Reconciliation already running, or order uses another method
//   - 502 Bad Gateway: SafetyPay or the order service failed
//   - 503 Service Unavailable: A critical dependency is down
package handler
