package events

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// Describe renders a short human-readable title and body for evt.
func Describe(evt domain.Event) (title, message string) {
	p := evt.Payload
	switch evt.Topic {
	case domain.TopicMarketCreated:
		return fmt.Sprintf("Market %s created", evt.MarketID), fmt.Sprintf("%v\nends at %v", p["question"], p["end_time"])
	case domain.TopicMarketCanceled:
		return fmt.Sprintf("Market %s canceled", evt.MarketID), fmt.Sprintf("refundable collateral: %v", p["total_collateral"])
	case domain.TopicCollateralDeposited:
		return fmt.Sprintf("Deposit in market %s", evt.MarketID), fmt.Sprintf("%v deposited %v (locked %v)", p["user"], p["amount"], p["new_total"])
	case domain.TopicCollateralWithdrawn:
		return fmt.Sprintf("Withdrawal from market %s", evt.MarketID), fmt.Sprintf("%v withdrew %v (remaining %v)", p["user"], p["amount"], p["new_total"])
	case domain.TopicPositionUpdated:
		return fmt.Sprintf("Position update in market %s", evt.MarketID), fmt.Sprintf("%v: yes %v, no %v, locked %v", p["user"], p["yes_shares"], p["no_shares"], p["locked_collateral"])
	case domain.TopicMarketResolved:
		return fmt.Sprintf("Market %s resolved", evt.MarketID), "outcome: " + outcomeLabel(p["outcome"])
	case domain.TopicPositionSettled:
		return fmt.Sprintf("Settlement in market %s", evt.MarketID), fmt.Sprintf("%v paid %v", p["user"], p["payout"])
	}
	return fmt.Sprintf("%s in market %s", evt.Topic, evt.MarketID), formatPayload(p)
}

func outcomeLabel(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return "YES"
		}
		return "NO"
	}
	return fmt.Sprint(v)
}

func formatPayload(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}
