package rules

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/IliaW/pay-gate/internal/model"
)

// Resolve determines the policy for an identified crawler from the raw
// configuration document. A missing or malformed document degrades to the
// charge-by-default rule instead of failing the request: a misconfigured
// deployment should charge the default price, not grant free access.
func Resolve(identity string, rawConfig string) *model.CrawlerRule {
	if rawConfig != "" {
		var doc model.CrawlerConfig
		if err := json.Unmarshal([]byte(rawConfig), &doc); err != nil {
			slog.Debug("crawler rules are not valid json. Fall back to charge-by-default.",
				slog.String("err", err.Error()))
		} else {
			for _, rule := range doc.Crawlers {
				if strings.EqualFold(rule.Name, identity) {
					match := rule
					return &match
				}
			}
			if doc.Default != "" {
				rule := &model.CrawlerRule{Name: "default", Action: doc.Default}
				if doc.DefaultPrice != nil {
					rule.Price = doc.DefaultPrice
				}
				return rule
			}
		}
	}

	return &model.CrawlerRule{Name: identity, Action: model.ActionCharge}
}
