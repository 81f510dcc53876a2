package orders

// Status is free-form: admins may overwrite it with any non-empty value.
// The constants are the values the shop itself uses.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)
