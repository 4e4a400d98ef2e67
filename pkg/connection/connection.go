package connection

import (
	"context"

	"github.com/leanstore/leanstore.go/internal/codec"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/logger"
)

// Connection carries Requests to a store. Send is safe for concurrent use.
type Connection interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	// Send performs req. A reply the store reports as a failure is returned as *Error.
	Send(ctx context.Context, req *Request) (*Response, error)
	GetUnmarshaler() codec.Unmarshaler
}

type BaseConnection struct {
	BaseURL     string
	AppID       string
	AppKey      string
	MasterKey   string
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler
	Logger      logger.Logger
}

func NewBaseConnection(p *Config) BaseConnection {
	l := p.Logger
	if l == nil {
		l = logger.Nop()
	}
	return BaseConnection{
		BaseURL:     p.BaseURL,
		AppID:       p.AppID,
		AppKey:      p.AppKey,
		MasterKey:   p.MasterKey,
		Marshaler:   p.Marshaler,
		Unmarshaler: p.Unmarshaler,
		Logger:      l,
	}
}

func (bc *BaseConnection) PreConnectionChecks() error {
	if bc.BaseURL == "" {
		return constants.ErrNoBaseURL
	}

	if bc.Marshaler == nil {
		return constants.ErrNoMarshaler
	}

	if bc.Unmarshaler == nil {
		return constants.ErrNoUnmarshaler
	}

	if bc.AppID == "" {
		return constants.ErrNoAppID
	}

	return nil
}

func (bc *BaseConnection) GetUnmarshaler() codec.Unmarshaler {
	return bc.Unmarshaler
}
