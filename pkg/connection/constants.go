package connection

const (
	HeaderAppID     = "X-LC-Id"
	HeaderAppKey    = "X-LC-Key"
	HeaderSession   = "X-LC-Session"
	HeaderRequestID = "X-Request-Id"

	// MasterKeySuffix marks X-LC-Key as carrying the master key.
	MasterKeySuffix = ",master"

	ContentTypeJSON = "application/json"
)
