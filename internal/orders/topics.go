package orders

import "strconv"

// TopicOrderEvents carries every order event. One topic keyed by order id
// puts all events of an order on one partition, in publish order.
const TopicOrderEvents = "order.events"

// Topics lists every topic the order service writes to.
var Topics = []string{TopicOrderEvents}

func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
