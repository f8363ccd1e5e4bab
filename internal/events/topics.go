package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated   = "order.created"
	TopicPromoRedeemed  = "promo.redeemed"
	TopicProductUpdated = "product.updated"
)

// DefaultTopics returns the canonical list of topics that support
// webhook subscriptions.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicPromoRedeemed,
		TopicProductUpdated,
	}
}
