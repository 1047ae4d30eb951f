package crawler

import (
	"strings"

	"github.com/IliaW/pay-gate/internal/model"
)

// DefaultSignatures is the built-in table of known AI content crawlers.
// Order matters: the first matching signature wins, so more specific vendors
// are listed before broader ones. Patterns are matched case-sensitively
// because they are vendor-issued tokens.
var DefaultSignatures = []model.CrawlerSignature{
	{Name: "GPTBot", Company: "OpenAI", UserAgentPatterns: []string{"GPTBot"}},
	{Name: "ChatGPT-User", Company: "OpenAI", UserAgentPatterns: []string{"ChatGPT-User"}},
	{Name: "OAI-SearchBot", Company: "OpenAI", UserAgentPatterns: []string{"OAI-SearchBot"}},
	{Name: "ClaudeBot", Company: "Anthropic", UserAgentPatterns: []string{"ClaudeBot", "Claude-Web"}},
	{Name: "Google-Extended", Company: "Google", UserAgentPatterns: []string{"Google-Extended"}},
	{Name: "GoogleOther", Company: "Google", UserAgentPatterns: []string{"GoogleOther"}},
	{Name: "FacebookBot", Company: "Meta", UserAgentPatterns: []string{"FacebookBot", "meta-externalagent"}},
	{Name: "Applebot-Extended", Company: "Apple", UserAgentPatterns: []string{"Applebot-Extended"}},
	{Name: "Amazonbot", Company: "Amazon", UserAgentPatterns: []string{"Amazonbot"}},
	{Name: "PerplexityBot", Company: "Perplexity", UserAgentPatterns: []string{"PerplexityBot"}},
	{Name: "YouBot", Company: "You.com", UserAgentPatterns: []string{"YouBot"}},
	{Name: "cohere-ai", Company: "Cohere", UserAgentPatterns: []string{"cohere-ai"}},
	{Name: "Bytespider", Company: "ByteDance", UserAgentPatterns: []string{"Bytespider"}},
	{Name: "Diffbot", Company: "Diffbot", UserAgentPatterns: []string{"Diffbot"}},
}

type Identifier struct {
	signatures []model.CrawlerSignature
}

// NewIdentifier creates an identifier over the given signature table.
// An empty table falls back to the built-in DefaultSignatures.
func NewIdentifier(signatures []model.CrawlerSignature) *Identifier {
	if len(signatures) == 0 {
		signatures = DefaultSignatures
	}
	return &Identifier{signatures: signatures}
}

// Identify maps a raw User-Agent to a canonical crawler name. The second
// return value is false when the User-Agent is empty or matches no signature.
func (i *Identifier) Identify(userAgent string) (string, bool) {
	if userAgent == "" {
		return "", false
	}
	for _, sig := range i.signatures {
		for _, pattern := range sig.UserAgentPatterns {
			if strings.Contains(userAgent, pattern) {
				return sig.Name, true
			}
		}
	}
	return "", false
}
