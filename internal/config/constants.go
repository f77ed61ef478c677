package config

const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./feedkeeper.db"

	// DefaultUserAgent identifies feed validation requests to remote servers
	DefaultUserAgent = "feedkeeper/1.0 (+https://github.com/mkhomutov/feedkeeper)"

	// DefaultMaxUploadBytes caps the size of an uploaded subscription list
	DefaultMaxUploadBytes = 10 << 20
)
