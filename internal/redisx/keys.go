package redisx

import "time"

const (
	// Interest membership per drop: set drop:{drop_id}:interest:members -> user ids
	KeyInterestMembers = "drop:%s:interest:members"

	// Recent interest, most recent first: list drop:{drop_id}:interest:recent -> user ids
	KeyInterestRecent = "drop:%s:interest:recent"

	// Interest entry per member: hash drop:{drop_id}:interest:entries -> user id -> json
	KeyInterestEntries = "drop:%s:interest:entries"

	// Drops a user is interested in: set user:{user_id}:drop-interests -> drop ids
	KeyUserInterests = "user:%s:drop-interests"

	// Live progress: hash drop:{drop_id}:progress {progress, status}
	KeyProgress = "drop:%s:progress"

	// Activity log, most recent first: list drop:{drop_id}:activity -> json
	KeyActivity = "drop:%s:activity"

	// Cart per user: cart:user:{user_id} -> json
	KeyCart = "cart:user:%s"

	// Engine snapshot per user: drops:session:{user_id} -> json
	KeySession = "drops:session:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup   = 48 * time.Hour
	TTLCart    = 7 * 24 * time.Hour
	TTLSession = 7 * 24 * time.Hour
)
