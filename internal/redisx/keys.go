package redisx

import "time"

const (
	// Cached active product: catalog:product:{id} -> product JSON
	KeyProduct = "catalog:product:%d"

	// Cached active product list
	KeyProductsActive = "catalog:products:active"

	// Live refresh tokens: auth:refresh:{token_id} -> user id
	KeyRefreshToken = "auth:refresh:%s"

	// Order status cache: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%d"

	// Idempotent order placement: idem:order:create:{user_id}:{key} -> placement JSON
	KeyIdemOrderCreate = "idem:order:create:%d:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLProductCache = 5 * time.Minute
	TTLStatusCache  = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
	TTLIdempotency  = 24 * time.Hour
)
