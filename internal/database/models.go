package database

// Subscriber is a notification recipient.
type Subscriber struct {
	ID                 int64
	Email              string
	EmailNotifications bool
	Sources            []int64
}

// Stats holds aggregate database statistics.
type Stats struct {
	Sources             int
	Notices             int
	Summarized          int
	SummaryFailures     int
	Subscribers         int
	ActiveSubscriptions int
	Runs                int
}
