package connection

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/leanstore/leanstore.go/internal/codec"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/logger"
	"github.com/leanstore/leanstore.go/pkg/models"
)

// Config holds everything a Connection needs to reach a store.
type Config struct {
	URL         url.URL
	BaseURL     string
	AppID       string
	AppKey      string
	MasterKey   string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler
	Logger      logger.Logger
}

// NewConfig creates a new Config with the store endpoint specified by the URL,
// such as "https://api.example.com".
// It is not absolutely necessary to create a Config using this function,
// but it is recommended to use this function to ensure that everything needed for the connection is set up correctly.
func NewConfig(u *url.URL) *Config {
	return &Config{
		URL:         *u,
		BaseURL:     fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		Timeout:     constants.DefaultHTTPTimeout,
		Marshaler:   models.JSONMarshaler{},
		Unmarshaler: models.JSONUnmarshaler{},
		Logger:      logger.Nop(),
	}
}

// WithApp sets the application credentials.
func (c *Config) WithApp(appID, appKey string) *Config {
	c.AppID = appID
	c.AppKey = appKey
	return c
}

// WithMasterKey sets the key used by requests made with UseMasterKey.
func (c *Config) WithMasterKey(masterKey string) *Config {
	c.MasterKey = masterKey
	return c
}

func (c *Config) WithLogger(l logger.Logger) *Config {
	c.Logger = l
	return c
}
