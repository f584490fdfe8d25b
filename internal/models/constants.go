package models

const (
	StatusReserved = "reserved"
)

const (
	// DefaultAdminName is the user name granted admin rights.
	DefaultAdminName = "admin"

	// DefaultNoticeSubject is the subject line of broadcast mails.
	DefaultNoticeSubject = "お知らせ"

	// DefaultSessionMaxAge in seconds (7 days)
	DefaultSessionMaxAge = 7 * 24 * 60 * 60

	// DefaultLockTTL bounds how long an item lock may be held, in seconds
	DefaultLockTTL = 10

	// LoginAttempts failed logins allowed per window
	LoginAttempts = 5

	// LoginWindow throttle window in seconds
	LoginWindow = 5 * 60

	// WorkerQueueSize in-memory sync queue size
	WorkerQueueSize = 128
)
