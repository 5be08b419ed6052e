package events

// Checkout topics. Coupon events are keyed by user id, order events by order id.
const (
	// TopicCouponApplied carries {"userId", "code"}.
	TopicCouponApplied = "coupon.applied"
	// TopicCouponRemoved carries {"userId", "code"}.
	TopicCouponRemoved = "coupon.removed"
	TopicOrderCreated  = "order.created"
	// TopicOrderPaid carries the confirmation email fields consumed by notify.
	TopicOrderPaid = "order.paid"
)
