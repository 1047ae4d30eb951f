package gate

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IliaW/pay-gate/config"
	"github.com/IliaW/pay-gate/internal/cache"
	"github.com/IliaW/pay-gate/internal/crawler"
	"github.com/IliaW/pay-gate/internal/model"
	"github.com/IliaW/pay-gate/internal/pricing"
	"github.com/IliaW/pay-gate/internal/rules"
	"github.com/IliaW/pay-gate/internal/telemetry"
	"github.com/google/uuid"
)

const (
	// MaxPriceHeader declares the maximum amount the crawler will pay.
	MaxPriceHeader = "crawler-max-price"
	// ExactPriceHeader declares the exact amount the crawler offers.
	ExactPriceHeader = "crawler-exact-price"
	// PriceHeader carries the required price on 402 responses.
	PriceHeader = "crawler-price"
	// ChargedHeader carries the charged price on forwarded paid responses.
	ChargedHeader = "crawler-charged"

	deniedMessage = "Access denied"

	OutcomeBlocked         = "blocked"
	OutcomePaymentRequired = "payment_required"
)

// fallbackPrice is USD 0.01, used when no default price is configured.
const fallbackPrice = pricing.Price(100)

// freePaths must stay crawlable regardless of payment policy.
var freePaths = map[string]struct{}{
	"/robots.txt":               {},
	"/sitemap.xml":              {},
	"/security.txt":             {},
	"/.well-known/security.txt": {},
	"/crawlers.json":            {},
}

// hop-by-hop headers are stripped before forwarding in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// DenialPublisher records denied crawler requests for audit.
type DenialPublisher interface {
	SendDenial(requestID, crawler, path, outcome, price string)
}

// Gate inspects each inbound request, identifies known crawlers and applies
// the configured rule: forward, block, or demand a payment declaration.
// Stateless per request; safe for concurrent use.
type Gate struct {
	Identifier  *crawler.Identifier
	Cache       cache.IdentityCache
	HttpClient  *http.Client
	Cfg         *config.Config
	BillingChan chan<- *model.ChargeEvent
	Audit       DenialPublisher
	Metrics     *telemetry.GateMetrics
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := freePaths[r.URL.Path]; ok {
		g.passThrough(w, r)
		return
	}

	identity, ok := g.identify(r.Header.Get("User-Agent"))
	if !ok {
		g.passThrough(w, r)
		return
	}
	slog.Info("crawler detected.", slog.String("crawler", identity), slog.String("path", r.URL.Path))

	rule := rules.Resolve(identity, g.Cfg.GateSettings.CrawlerRules)
	switch rule.Action {
	case model.ActionAllow:
		g.passThrough(w, r)
		return
	case model.ActionBlock:
		requestID := uuid.NewString()
		slog.Info("crawler is blocked by the rules.", slog.String("crawler", identity),
			slog.String("request_id", requestID))
		g.Metrics.BlockedCnt(1)
		g.Audit.SendDenial(requestID, identity, r.URL.Path, OutcomeBlocked, "")
		w.WriteHeader(http.StatusForbidden)
		if _, err := w.Write([]byte(deniedMessage)); err != nil {
			slog.Warn("failed to write the response body.", slog.String("err", err.Error()))
		}
		return
	}

	g.negotiate(w, r, identity, g.configuredPrice(rule))
}

// negotiate applies the charge action. The maximum-offer header is consulted
// first and, when present, shadows the exact-offer header entirely.
func (g *Gate) negotiate(w http.ResponseWriter, r *http.Request, identity string, configured pricing.Price) {
	requestID := uuid.NewString()

	if maxHeader := r.Header.Get(MaxPriceHeader); maxHeader != "" {
		offered, err := pricing.Parse(maxHeader)
		if err == nil && pricing.IsAcceptable(offered, configured) {
			g.chargeAndForward(w, r, requestID, identity, configured)
			return
		}
		g.paymentRequired(w, requestID, identity, r.URL.Path, configured)
		return
	}

	if exactHeader := r.Header.Get(ExactPriceHeader); exactHeader != "" {
		offered, err := pricing.Parse(exactHeader)
		if err == nil && offered == configured {
			g.chargeAndForward(w, r, requestID, identity, configured)
			return
		}
		g.paymentRequired(w, requestID, identity, r.URL.Path, configured)
		return
	}

	g.paymentRequired(w, requestID, identity, r.URL.Path, configured)
}

func (g *Gate) identify(userAgent string) (string, bool) {
	if userAgent == "" {
		return "", false
	}
	if g.Cache != nil {
		if identity, found := g.Cache.GetIdentity(userAgent); found {
			return identity, identity != ""
		}
	}
	identity, ok := g.Identifier.Identify(userAgent)
	if g.Cache != nil {
		g.Cache.SetIdentity(userAgent, identity)
	}
	return identity, ok
}

// configuredPrice picks the rule's price when valid, else the process-wide
// default. A rule price below the minimum is treated as absent.
func (g *Gate) configuredPrice(rule *model.CrawlerRule) pricing.Price {
	if rule.Price != nil {
		if p, ok := pricing.FromFloat(*rule.Price); ok {
			return p
		}
		slog.Warn("rule price is invalid. Use the default price.",
			slog.String("rule", rule.Name), slog.Float64("price", *rule.Price))
	}
	return DefaultPrice(g.Cfg)
}

// DefaultPrice resolves the process-wide default price from the config.
// An unset or unparseable value falls back to USD 0.01.
func DefaultPrice(cfg *config.Config) pricing.Price {
	raw := cfg.GateSettings.DefaultPrice
	if raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			if p, ok := pricing.FromFloat(amount); ok {
				return p
			}
		}
		slog.Warn("default price is not a valid decimal. Use the fallback price.",
			slog.String("default_price", raw))
	}
	return fallbackPrice
}

func (g *Gate) passThrough(w http.ResponseWriter, r *http.Request) {
	if err := g.forward(w, r, 0, false); err == nil {
		g.Metrics.PassThroughCnt(1)
	}
}

func (g *Gate) chargeAndForward(w http.ResponseWriter, r *http.Request, requestID, identity string,
	charged pricing.Price) {
	if err := g.forward(w, r, charged, true); err != nil {
		return
	}
	g.Metrics.ChargedCnt(1)
	g.BillingChan <- &model.ChargeEvent{
		RequestID:  requestID,
		Crawler:    identity,
		Path:       r.URL.Path,
		Price:      pricing.Format(charged),
		OccurredAt: time.Now().UTC(),
	}
}

func (g *Gate) paymentRequired(w http.ResponseWriter, requestID, identity, path string, configured pricing.Price) {
	g.Metrics.PaymentRequiredCnt(1)
	g.Audit.SendDenial(requestID, identity, path, OutcomePaymentRequired, pricing.Format(configured))
	w.Header().Set(PriceHeader, pricing.Format(configured))
	w.WriteHeader(http.StatusPaymentRequired)
}

// forward proxies the request to the origin, preserving the origin response
// status, headers and body. Only the charged-price header is added.
func (g *Gate) forward(w http.ResponseWriter, r *http.Request, charged pricing.Price, addCharged bool) error {
	originUrl := strings.TrimRight(g.Cfg.OriginSettings.BaseURL, "/") + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, originUrl, r.Body)
	if err != nil {
		slog.Error("failed to create a request to the origin.", slog.String("url", originUrl),
			slog.String("err", err.Error()))
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return err
	}
	req.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	resp, err := g.HttpClient.Do(req)
	if err != nil {
		slog.Error("failed to make a request to the origin.", slog.String("url", originUrl),
			slog.String("err", err.Error()))
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close the response body.", slog.String("err", err.Error()))
		}
	}()

	header := w.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
	if addCharged {
		header.Set(ChargedHeader, pricing.Format(charged))
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Warn("failed to copy the origin response body.", slog.String("err", err.Error()))
	}

	return nil
}
