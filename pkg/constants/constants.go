package constants

import "time"

const (
	// APIVersion prefixes every REST path.
	APIVersion = "1.1"

	// DefaultLimit is the number of rows a query returns when no limit is set.
	DefaultLimit = 100
	// MaxLimit is the largest limit the store accepts.
	MaxLimit = 1000
	// MaxBatchSize is the number of requests sent in a single batch round trip.
	MaxBatchSize = 50

	// RequestIDLength size of the id attached to every request for log correlation
	RequestIDLength = 16

	// DefaultHTTPTimeout is applied to the default http.Client.
	DefaultHTTPTimeout = 10 * time.Second
)

// Reserved attribute names, assigned by the store.
const (
	KeyObjectID  = "objectId"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
	KeyACL       = "ACL"
)

// Built-in class names.
const (
	ClassUser         = "_User"
	ClassRole         = "_Role"
	ClassInstallation = "_Installation"
	ClassStatus       = "_Status"
	ClassFollower     = "_Follower"
	ClassFollowee     = "_Followee"
)

var (
	HTTPScheme       = "http"
	HTTPSecureScheme = "https"
)
