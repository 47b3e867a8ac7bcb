// Package paysettle is the asynchronous settlement layer for SafetyPay redirect payments.
// It accepts gateway payment notifications, keeps a pending record per payment attempt
// and periodically reconciles those records against the order management system.
//
// # Overview
//
// A shopper paying with SafetyPay leaves the store for the gateway and pays later, often
// at a bank branch or through online banking. The gateway reports the outcome through a
// signed notification. paysettle stores that notification, acknowledges it with a signed
// response and a background reconciler settles the order once the payment is confirmed.
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   SafetyPay     │───►│   paysettle     │◄──►│  Order Service  │
//	│   (Gateway)     │◄───│  (Settlement)   │    │    (REST)       │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Payment Flow
//
//  1. Checkout calls POST /v1/payments, which validates the order.
//  2. POST /v1/payments/{orderGuid}/redirect requests an express token and
//     returns the gateway URL the shopper is sent to.
//  3. SafetyPay posts a notification to /notifications/safetypay. The body is a
//     flat key=value payload; the record is stored even when the signature is
//     wrong, but only a valid signature earns a signed acknowledgement.
//  4. The reconciler runs every SyncPeriod. Paid notifications settle their
//     order, expired operation codes are reissued or the order is abandoned,
//     everything else stays pending.
//
// # Storage
//
// Pending notifications live in SQLite (default), PostgreSQL, MySQL or memory,
// selected with STORAGE_DRIVER. Every store keys records on the lowercase
// canonical correlation id.
//
// # Configuration
//
// Service settings come from the environment (optionally via .env). SafetyPay
// merchant settings come from the YAML file named by SAFETYPAY_SETTINGS_FILE,
// with SAFETYPAY_* variables taking precedence:
//
//	SAFETYPAY_API_KEY=...
//	SAFETYPAY_SIGNATURE_KEY=...
//	SAFETYPAY_SYNC_PERIOD=60
//	SAFETYPAY_CAN_GENERATE_NEW_CODE=true
//
// # Audit
//
// When ENABLE_OPENSEARCH_LOGGING is set every notification and reconciliation
// outcome is indexed in OpenSearch and can be queried through
// GET /v1/notifications/{correlationID}/history and GET /v1/audit/stats.
//
// # Operator CLI
//
// cmd/settlectl lists pending notifications, runs a reconciliation pass and
// signs or verifies notification payloads by hand.
package paysettle
