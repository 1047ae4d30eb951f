package model

type CrawlerAction string

const (
	ActionAllow  CrawlerAction = "allow"
	ActionCharge CrawlerAction = "charge"
	ActionBlock  CrawlerAction = "block"
)

// CrawlerSignature describes one known crawler vendor. The patterns are
// vendor-issued User-Agent tokens and are matched case-sensitively.
type CrawlerSignature struct {
	Name              string   `json:"name"`
	Company           string   `json:"company"`
	UserAgentPatterns []string `json:"user_agent_patterns"`
}

// CrawlerRule is the resolved policy for one crawler. Price is present only
// for the charge action; a nil price means the process-wide default applies.
type CrawlerRule struct {
	Name   string        `json:"name"`
	Action CrawlerAction `json:"action"`
	Price  *float64      `json:"price,omitempty"`
}

// CrawlerConfig is the externally supplied configuration document.
// Expected json format: {"default": "charge", "defaultPrice": 0.05,
// "crawlers": [{"name": "GPTBot", "action": "allow"}]}
type CrawlerConfig struct {
	Default      CrawlerAction `json:"default,omitempty"`
	DefaultPrice *float64      `json:"defaultPrice,omitempty"`
	Crawlers     []CrawlerRule `json:"crawlers,omitempty"`
}
