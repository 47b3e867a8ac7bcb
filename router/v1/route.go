package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paysettle/handler"
)

// Routes registers the operator API under /v1
func Routes(r chi.Router, admin *handler.AdminHandler) {
	r.Get("/method", admin.GetMethod)

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", admin.ListNotifications)
		r.Get("/{correlationID}", admin.GetNotification)
		r.Get("/{correlationID}/history", admin.GetNotificationHistory)
	})

	r.Get("/audit/stats", admin.GetAuditStats)
	r.Post("/reconcile", admin.Reconcile)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", admin.ProcessPayment)
		r.Post("/{orderGuid}/redirect", admin.RedirectPayment)
	})
}
