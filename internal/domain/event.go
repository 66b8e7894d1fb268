package domain

// EventTopic names a ledger notification.
type EventTopic string

const (
	TopicMarketCreated       EventTopic = "market_created"
	TopicMarketCanceled      EventTopic = "market_canceled"
	TopicCollateralDeposited EventTopic = "collateral_deposited"
	TopicCollateralWithdrawn EventTopic = "collateral_withdrawn"
	TopicPositionUpdated     EventTopic = "position_updated"
	TopicMarketResolved      EventTopic = "market_resolved"
	TopicPositionSettled     EventTopic = "position_settled"
)

// Event is a structured notification emitted by a ledger operation. Events
// are published only after the operation's transaction commits.
type Event struct {
	ID        string         `json:"id"`
	Topic     EventTopic     `json:"topic"`
	MarketID  string         `json:"market_id"`
	Timestamp uint64         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}
