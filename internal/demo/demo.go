package demo

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/IliaW/pay-gate/internal/crawler"
	"github.com/IliaW/pay-gate/internal/gate"
	"github.com/IliaW/pay-gate/internal/pricing"
	"golang.org/x/time/rate"
)

// userAgents are the canned User-Agent strings the demo page can send.
var userAgents = map[string]string{
	"Human":           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/124.0 Safari/537.36",
	"GPTBot":          "GPTBot/1.0 (+https://openai.com/gptbot)",
	"ClaudeBot":       "ClaudeBot/1.0 (+https://anthropic.com/claude-web)",
	"Google-Extended": "Google-Extended/1.0",
	"FacebookBot":     "FacebookBot/1.0 (+https://www.facebook.com/externalhit_uatext.php)",
	"Bytespider":      "Bytespider/1.0 (+https://zhanzhang.toutiao.com/crawler_en)",
	"PerplexityBot":   "PerplexityBot/1.0 (+https://www.perplexity.ai/perplexitybot)",
	"Amazonbot":       "Amazonbot/0.1 (+https://developer.amazon.com/support/amazonbot)",
}

// TestResult is one simulated request/response exchange.
type TestResult struct {
	RequestHeaders  map[string]string `json:"requestHeaders"`
	Status          int               `json:"status"`
	StatusText      string            `json:"statusText"`
	ResponseHeaders map[string]string `json:"responseHeaders"`
	Note            string            `json:"note"`
}

// Handler serves the demo page and the json test endpoint. The endpoint runs
// the real identifier and price codec against canned User-Agents, so the
// decision logic is exercised without touching the origin.
type Handler struct {
	Identifier *crawler.Identifier
	Price      pricing.Price
}

func (h *Handler) Page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(demoPage)); err != nil {
		slog.Warn("failed to write the demo page.", slog.String("err", err.Error()))
	}
}

func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	userAgent, ok := userAgents[r.URL.Query().Get("crawler")]
	if !ok {
		http.Error(w, `{"error":"unknown crawler"}`, http.StatusNotFound)
		return
	}
	action := r.URL.Query().Get("action")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.simulate(userAgent, action)); err != nil {
		slog.Warn("failed to encode the test result.", slog.String("err", err.Error()))
	}
}

func (h *Handler) simulate(userAgent, action string) *TestResult {
	requestHeaders := map[string]string{"User-Agent": userAgent}
	if action == "max-price" {
		requestHeaders[gate.MaxPriceHeader] = pricing.Format(h.Price)
	}
	if action == "exact-price" {
		requestHeaders[gate.ExactPriceHeader] = pricing.Format(h.Price)
	}

	_, found := h.Identifier.Identify(userAgent)
	if !found {
		return &TestResult{
			RequestHeaders:  requestHeaders,
			Status:          http.StatusOK,
			StatusText:      "OK",
			ResponseHeaders: map[string]string{"content-type": "text/html"},
			Note:            "Not a known AI crawler. Passes through freely.",
		}
	}

	if action == "max-price" {
		offered, err := pricing.Parse(requestHeaders[gate.MaxPriceHeader])
		if err == nil && pricing.IsAcceptable(offered, h.Price) {
			return &TestResult{
				RequestHeaders: requestHeaders,
				Status:         http.StatusOK,
				StatusText:     "OK",
				ResponseHeaders: map[string]string{
					gate.ChargedHeader: pricing.Format(h.Price),
					"content-type":     "text/html",
				},
				Note: "Payment accepted. Offered " + pricing.Format(offered) +
					", price is " + pricing.Format(h.Price) + ". Access granted.",
			}
		}
	}

	if action == "exact-price" {
		offered, err := pricing.Parse(requestHeaders[gate.ExactPriceHeader])
		if err == nil && offered == h.Price {
			return &TestResult{
				RequestHeaders: requestHeaders,
				Status:         http.StatusOK,
				StatusText:     "OK",
				ResponseHeaders: map[string]string{
					gate.ChargedHeader: pricing.Format(h.Price),
					"content-type":     "text/html",
				},
				Note: "Exact price matched (" + pricing.Format(h.Price) + "). Access granted.",
			}
		}
	}

	note := "Payment header present but insufficient or invalid."
	if action == "none" || action == "" {
		note = "No payment header sent. Access denied."
	}
	return &TestResult{
		RequestHeaders:  requestHeaders,
		Status:          http.StatusPaymentRequired,
		StatusText:      "Payment Required",
		ResponseHeaders: map[string]string{gate.PriceHeader: pricing.Format(h.Price)},
		Note:            note,
	}
}

// RateLimit guards the public demo endpoint with a shared limiter.
func RateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
