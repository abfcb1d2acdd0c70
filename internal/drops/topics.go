package drops

const (
	TopicReservationStarted = "drop.reservation.started"
	TopicInterestToggled    = "drop.interest.toggled"
	TopicProgressUpdated    = "drop.progress.updated"
)

// Partition key = drop_id, so every event of one drop keeps its order.
func PartitionKey(dropID string) []byte { return []byte(dropID) }
