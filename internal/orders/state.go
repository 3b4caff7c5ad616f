package orders

import "github.com/angelmondragon/ohya-backend/pkg/enums"

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
}

// CanTransition reports whether an order may move from one status to another.
// Completed and cancelled orders never move again.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
