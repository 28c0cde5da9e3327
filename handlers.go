package main

import (
	"net/http"
)

// corsPreamble applies the common CORS headers and handles OPTIONS.
// Returns false when the request is already answered.
func corsPreamble(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return false
	}
	return true
}

// handleEnable enables auto-delivery for the bots named in the query
func handleEnable(w http.ResponseWriter, r *http.Request) {
	if !corsPreamble(w, r, "POST") {
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bots := r.URL.Query().Get("bots")
	if bots == "" {
		sendJSONResponse(w, CommandResponse{Success: false, Error: "bots parameter is required"})
		return
	}

	LogInfo("Enable requested for: %s", bots)
	result := deliverer.EnableDelivery(r.Context(), bots)
	sendJSONResponse(w, CommandResponse{Success: true, Result: result})
}

// handleDisable disables auto-delivery for the bots named in the query
func handleDisable(w http.ResponseWriter, r *http.Request) {
	if !corsPreamble(w, r, "POST") {
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bots := r.URL.Query().Get("bots")
	if bots == "" {
		sendJSONResponse(w, CommandResponse{Success: false, Error: "bots parameter is required"})
		return
	}

	LogInfo("Disable requested for: %s", bots)
	result := deliverer.DisableDelivery(r.Context(), bots)
	sendJSONResponse(w, CommandResponse{Success: true, Result: result})
}

// handleStatus reports delivery status for the bots named in the query
func handleStatus(w http.ResponseWriter, r *http.Request) {
	if !corsPreamble(w, r, "GET") {
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bots := r.URL.Query().Get("bots")
	if bots == "" {
		bots = "all"
	}

	result := deliverer.DeliveryStatus(r.Context(), bots)
	sendJSONResponse(w, CommandResponse{Success: true, Result: result})
}

// handleVerifyCode submits an SMS verification code for one bot
func handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	if !corsPreamble(w, r, "POST") {
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bot := r.URL.Query().Get("bot")
	code := r.URL.Query().Get("code")
	if bot == "" || code == "" {
		sendJSONResponse(w, CommandResponse{Success: false, Error: "bot and code parameters are required"})
		return
	}

	LogInfo("Verification code submitted for bot: %s", bot)
	result := deliverer.VerifyCode(r.Context(), bot, code)
	sendJSONResponse(w, CommandResponse{Success: true, Result: result})
}

// handleUpdateCookies replaces one bot's Buff cookies
func handleUpdateCookies(w http.ResponseWriter, r *http.Request) {
	if !corsPreamble(w, r, "POST") {
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		sendJSONResponse(w, CommandResponse{Success: false, Error: "invalid form data"})
		return
	}

	bot := r.PostFormValue("bot")
	cookies := r.PostFormValue("cookies")
	if bot == "" || cookies == "" {
		sendJSONResponse(w, CommandResponse{Success: false, Error: "bot and cookies fields are required"})
		return
	}

	LogInfo("Cookie update submitted for bot: %s", bot)
	result := deliverer.UpdateCookies(r.Context(), bot, cookies)
	sendJSONResponse(w, CommandResponse{Success: true, Result: result})
}

// handleHealth reports per-bot connectivity and automation state
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if !corsPreamble(w, r, "GET") {
		return
	}

	resp := HealthResponse{Status: "ok"}
	for name := range botManager.Accounts() {
		rec, _ := registry.TryGet(name)
		resp.Bots = append(resp.Bots, BotHealth{
			Username:  name,
			Connected: botManager.IsConnected(name),
			Enabled:   rec.Enabled,
			Pending:   tradeCache.GetTradeCacheCount(name),
		})
	}
	sendJSONResponse(w, resp)
}
