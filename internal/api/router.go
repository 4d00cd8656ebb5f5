package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("POST /v1/chat", h.ChatSend)
	mux.HandleFunc("GET /v1/chat", h.ChatTranscript)

	mux.HandleFunc("GET /v1/recipients", h.ListRecipients)
	mux.HandleFunc("POST /v1/recipients", h.AddRecipient)
	mux.HandleFunc("POST /v1/recipients/import", h.ImportRecipients)
	mux.HandleFunc("POST /v1/recipients/select-all", h.SelectAllRecipients)
	mux.HandleFunc("PATCH /v1/recipients/{id}", h.UpdateRecipient)
	mux.HandleFunc("DELETE /v1/recipients/{id}", h.DeleteRecipient)

	mux.HandleFunc("POST /v1/sms/bulk", h.BulkSend)
	mux.HandleFunc("POST /v1/sms/send", h.SendSMS)
	mux.HandleFunc("GET /v1/deliveries/{phone}", h.LastDelivery)

	mux.HandleFunc("POST /v1/generations", h.StartGeneration)
	mux.HandleFunc("GET /v1/generations/current", h.CurrentGeneration)
	mux.HandleFunc("GET /v1/generations/current/image", h.CurrentImage)
	mux.HandleFunc("POST /v1/generations/cancel", h.CancelGeneration)
	mux.HandleFunc("GET /v1/generations/history", h.GenerationHistory)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("royal-studio"))
	})

	return mux
}
