package mozillion

import (
	"strings"

	"golang.org/x/net/html"
)

// ParseDashboardPlans extracts SIM plan identities from the dashboard HTML.
// It scans the <select id="simlist"> block for <option> tags: an option
// yields a plan only when it carries both a value attribute (sim plan ID)
// and a data-orderdetail_id attribute. data-sim-number, when present,
// supplies the SIM number and doubles as the display name. Tag and
// attribute matching is case-insensitive and attribute order is irrelevant.
// A missing or malformed select block yields an empty list.
func ParseDashboardPlans(body string) []PlanIdentity {
	var plans []PlanIdentity
	z := html.NewTokenizer(strings.NewReader(body))

	inSimlist := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way we are done.
			return plans

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			tag := strings.ToLower(tok.Data)

			if !inSimlist {
				if tag == "select" && strings.EqualFold(attrValue(tok, "id"), "simlist") {
					inSimlist = true
				}
				continue
			}

			if tag != "option" {
				continue
			}
			simPlanID := strings.TrimSpace(attrValue(tok, "value"))
			orderDetailID := strings.TrimSpace(attrValue(tok, "data-orderdetail_id"))
			if simPlanID == "" || orderDetailID == "" {
				continue
			}

			simNumber := strings.TrimSpace(attrValue(tok, "data-sim-number"))
			displayName := simNumber
			if displayName == "" {
				displayName = "SIM Plan " + simPlanID
			}

			plans = append(plans, PlanIdentity{
				OrderDetailID: orderDetailID,
				SimPlanID:     simPlanID,
				SimNumber:     simNumber,
				DisplayName:   displayName,
			})

		case html.EndTagToken:
			if inSimlist && strings.EqualFold(z.Token().Data, "select") {
				return plans
			}
		}
	}
}

func attrValue(tok html.Token, key string) string {
	for _, attr := range tok.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}
