package gate

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IliaW/pay-gate/config"
	"github.com/IliaW/pay-gate/internal/crawler"
	"github.com/IliaW/pay-gate/internal/model"
	"github.com/IliaW/pay-gate/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gptBotAgent    = "GPTBot/1.0 (+https://openai.com/gptbot)"
	claudeBotAgent = "ClaudeBot/1.0 (+https://anthropic.com/claude-web)"
	humanAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/124.0 Safari/537.36"
)

type denial struct {
	crawler string
	path    string
	outcome string
	price   string
}

type fakeAudit struct {
	denials []denial
}

func (f *fakeAudit) SendDenial(_, crawler, path, outcome, price string) {
	f.denials = append(f.denials, denial{crawler: crawler, path: path, outcome: outcome, price: price})
}

type fakeCache struct {
	entries map[string]string
	sets    map[string]string
}

func (f *fakeCache) GetIdentity(userAgent string) (string, bool) {
	identity, found := f.entries[userAgent]
	return identity, found
}

func (f *fakeCache) SetIdentity(userAgent, identity string) {
	f.sets[userAgent] = identity
}

func (f *fakeCache) Close() {}

func noopMetrics() *telemetry.GateMetrics {
	noop := func(int64) {}
	return &telemetry.GateMetrics{
		PassThroughCnt:     noop,
		ChargedCnt:         noop,
		PaymentRequiredCnt: noop,
		BlockedCnt:         noop,
	}
}

func originServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Origin", "true")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("origin content"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGate(t *testing.T, origin *httptest.Server, crawlerRules string) (*Gate, *fakeAudit, chan *model.ChargeEvent) {
	t.Helper()
	audit := &fakeAudit{}
	billingChan := make(chan *model.ChargeEvent, 10)
	g := &Gate{
		Identifier: crawler.NewIdentifier(nil),
		HttpClient: origin.Client(),
		Cfg: &config.Config{
			GateSettings:   &config.GateConfig{CrawlerRules: crawlerRules, DefaultPrice: "0.01"},
			OriginSettings: &config.OriginConfig{BaseURL: origin.URL},
		},
		BillingChan: billingChan,
		Audit:       audit,
		Metrics:     noopMetrics(),
	}
	return g, audit, billingChan
}

func doRequest(g *Gate, path, userAgent string, headers map[string]string) *http.Response {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w.Result()
}

func receivedEvent(billingChan chan *model.ChargeEvent) *model.ChargeEvent {
	select {
	case event := <-billingChan:
		return event
	default:
		return nil
	}
}

func TestGate_NonCrawlerPassesThrough(t *testing.T) {
	g, audit, billingChan := newTestGate(t, originServer(t), "")

	resp := doRequest(g, "/article", humanAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Origin"))
	assert.Empty(t, resp.Header.Get(PriceHeader))
	assert.Empty(t, resp.Header.Get(ChargedHeader))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "origin content", string(body))
	assert.Empty(t, audit.denials)
	assert.Nil(t, receivedEvent(billingChan))
}

func TestGate_MissingUserAgentPassesThrough(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "")

	resp := doRequest(g, "/article", "", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(PriceHeader))
}

func TestGate_FreePathsAlwaysPassThrough(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), `{"crawlers":[{"name":"GPTBot","action":"block"}]}`)

	paths := []string{"/robots.txt", "/sitemap.xml", "/security.txt", "/.well-known/security.txt", "/crawlers.json"}
	for _, path := range paths {
		resp := doRequest(g, path, gptBotAgent, nil)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, "path %s", path)
		assert.Empty(t, resp.Header.Get(PriceHeader), "path %s", path)
	}
}

func TestGate_NoPaymentHeaderGets402(t *testing.T) {
	g, audit, _ := newTestGate(t, originServer(t), "")

	resp := doRequest(g, "/article", gptBotAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(PriceHeader))
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)

	require.Len(t, audit.denials, 1)
	assert.Equal(t, "GPTBot", audit.denials[0].crawler)
	assert.Equal(t, OutcomePaymentRequired, audit.denials[0].outcome)
	assert.Equal(t, "USD 0.01", audit.denials[0].price)
}

func TestGate_BlockedCrawlerGets403(t *testing.T) {
	g, audit, billingChan := newTestGate(t, originServer(t), `{"crawlers":[{"name":"ClaudeBot","action":"block"}]}`)

	resp := doRequest(g, "/article", claudeBotAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(PriceHeader))
	assert.Empty(t, resp.Header.Get(ChargedHeader))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Access denied", string(body))

	require.Len(t, audit.denials, 1)
	assert.Equal(t, OutcomeBlocked, audit.denials[0].outcome)
	assert.Nil(t, receivedEvent(billingChan))
}

func TestGate_AllowedCrawlerPassesThrough(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), `{"crawlers":[{"name":"GPTBot","action":"allow"}]}`)

	resp := doRequest(g, "/article", gptBotAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(ChargedHeader))
}

func TestGate_MaxPriceAccepted(t *testing.T) {
	g, audit, billingChan := newTestGate(t, originServer(t), "")

	resp := doRequest(g, "/article", gptBotAgent, map[string]string{MaxPriceHeader: "USD 0.01"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(ChargedHeader))
	assert.Equal(t, "true", resp.Header.Get("X-Origin"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "origin content", string(body))
	assert.Empty(t, audit.denials)

	event := receivedEvent(billingChan)
	require.NotNil(t, event)
	assert.Equal(t, "GPTBot", event.Crawler)
	assert.Equal(t, "/article", event.Path)
	assert.Equal(t, "USD 0.01", event.Price)
	assert.NotEmpty(t, event.RequestID)
}

func TestGate_MaxPriceOverpayChargedConfiguredPrice(t *testing.T) {
	g, _, billingChan := newTestGate(t, originServer(t), "")

	resp := doRequest(g, "/article", gptBotAgent, map[string]string{MaxPriceHeader: "USD 5"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(ChargedHeader))

	event := receivedEvent(billingChan)
	require.NotNil(t, event)
	assert.Equal(t, "USD 0.01", event.Price)
}

func TestGate_MaxPriceInsufficient(t *testing.T) {
	g, _, billingChan := newTestGate(t, originServer(t), "")

	resp := doRequest(g, "/article", gptBotAgent, map[string]string{MaxPriceHeader: "USD 0.001"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(PriceHeader))
	assert.Nil(t, receivedEvent(billingChan))
}

func TestGate_MaxPriceMalformed(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "")

	for _, header := range []string{"EUR 5", "USD abc", "USD", "nonsense"} {
		resp := doRequest(g, "/article", gptBotAgent, map[string]string{MaxPriceHeader: header})
		resp.Body.Close()

		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode, "header %q", header)
		assert.Equal(t, "USD 0.01", resp.Header.Get(PriceHeader), "header %q", header)
	}
}

func TestGate_ExactPriceAccepted(t *testing.T) {
	g, _, billingChan := newTestGate(t, originServer(t), "")

	resp := doRequest(g, "/article", gptBotAgent, map[string]string{ExactPriceHeader: "USD 0.0100"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(ChargedHeader))
	assert.NotNil(t, receivedEvent(billingChan))
}

func TestGate_ExactPriceMismatch(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "")

	// Over-payment is not tolerated on the exact-offer path.
	resp := doRequest(g, "/article", gptBotAgent, map[string]string{ExactPriceHeader: "USD 0.02"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(PriceHeader))
}

func TestGate_MaxPriceShadowsExactPrice(t *testing.T) {
	g, _, billingChan := newTestGate(t, originServer(t), "")

	// The max-price offer fails while the exact-price offer would succeed.
	// Only the max-price path may be evaluated.
	resp := doRequest(g, "/article", gptBotAgent, map[string]string{
		MaxPriceHeader:   "USD 0.001",
		ExactPriceHeader: "USD 0.01",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Nil(t, receivedEvent(billingChan))
}

func TestGate_RulePriceOverridesDefault(t *testing.T) {
	rules := `{"crawlers":[{"name":"GPTBot","action":"charge","price":0.05}]}`
	g, _, _ := newTestGate(t, originServer(t), rules)

	resp := doRequest(g, "/article", gptBotAgent, map[string]string{MaxPriceHeader: "USD 0.01"})
	resp.Body.Close()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "USD 0.05", resp.Header.Get(PriceHeader))

	resp = doRequest(g, "/article", gptBotAgent, map[string]string{MaxPriceHeader: "USD 0.05"})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "USD 0.05", resp.Header.Get(ChargedHeader))
}

func TestGate_RulePriceBelowFloorFallsBackToDefault(t *testing.T) {
	rules := `{"crawlers":[{"name":"GPTBot","action":"charge","price":0.0001}]}`
	g, _, _ := newTestGate(t, originServer(t), rules)

	resp := doRequest(g, "/article", gptBotAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(PriceHeader))
}

func TestGate_MalformedRulesChargeByDefault(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "{not json")

	resp := doRequest(g, "/article", gptBotAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(PriceHeader))
}

func TestGate_UnparseableDefaultPriceFallsBack(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "")
	g.Cfg.GateSettings.DefaultPrice = "abc"

	resp := doRequest(g, "/article", gptBotAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "USD 0.01", resp.Header.Get(PriceHeader))
}

func TestGate_OriginStatusAndHeadersPreserved(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "kept")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("teapot"))
	}))
	defer origin.Close()
	g, _, _ := newTestGate(t, origin, "")

	resp := doRequest(g, "/article", gptBotAgent, map[string]string{MaxPriceHeader: "USD 0.01"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "kept", resp.Header.Get("X-Custom"))
	assert.Equal(t, "USD 0.01", resp.Header.Get(ChargedHeader))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "teapot", string(body))
}

func TestGate_QueryStringForwarded(t *testing.T) {
	var gotURI string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
	}))
	defer origin.Close()
	g, _, _ := newTestGate(t, origin, "")

	resp := doRequest(g, "/search?q=golang&page=2", humanAgent, nil)
	resp.Body.Close()

	assert.Equal(t, "/search?q=golang&page=2", gotURI)
}

func TestGate_IdentityCacheHit(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "")
	// The cache claims a browser UA is GPTBot; the gate must trust it and
	// skip the signature scan.
	g.Cache = &fakeCache{
		entries: map[string]string{humanAgent: "GPTBot"},
		sets:    map[string]string{},
	}

	resp := doRequest(g, "/article", humanAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestGate_IdentityCacheNegativeHit(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "")
	g.Cache = &fakeCache{
		entries: map[string]string{gptBotAgent: ""},
		sets:    map[string]string{},
	}

	resp := doRequest(g, "/article", gptBotAgent, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGate_IdentityCacheMissPopulates(t *testing.T) {
	g, _, _ := newTestGate(t, originServer(t), "")
	fake := &fakeCache{entries: map[string]string{}, sets: map[string]string{}}
	g.Cache = fake

	resp := doRequest(g, "/article", gptBotAgent, nil)
	resp.Body.Close()

	assert.Equal(t, "GPTBot", fake.sets[gptBotAgent])

	resp = doRequest(g, "/article", humanAgent, nil)
	resp.Body.Close()

	assert.Equal(t, "", fake.sets[humanAgent])
	assert.Contains(t, fake.sets, humanAgent)
}
