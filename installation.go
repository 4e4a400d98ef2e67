package leanstore

import (
	"regexp"

	"github.com/gofrs/uuid"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

var channelPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Installation is an object of the installation class: a device that can
// receive pushes on the channels it subscribes to.
type Installation struct {
	*Object
}

// NewInstallation creates an unsaved installation of deviceType ("ios",
// "android", ...) with a fresh installation id.
func (c *Client) NewInstallation(deviceType string) (*Installation, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, connection.Wrap(constants.InternalServerError, err)
	}
	in := &Installation{c.Object(constants.ClassInstallation)}
	if err := in.SetAll(map[string]any{
		"installationId": id.String(),
		"deviceType":     deviceType,
	}, Silent()); err != nil {
		return nil, err
	}
	return in, nil
}

// AsInstallation views o as an installation.
func AsInstallation(o *Object) (*Installation, error) {
	if o == nil || o.kind != KindInstallation {
		return nil, connection.NewError(constants.IncorrectType, "object is not an installation")
	}
	return &Installation{o}, nil
}

func (in *Installation) InstallationID() string {
	s, _ := in.Get("installationId").(string)
	return s
}

func (in *Installation) DeviceType() string {
	s, _ := in.Get("deviceType").(string)
	return s
}

// Channels returns the subscribed channels.
func (in *Installation) Channels() []string {
	raw, _ := in.Get("channels").([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Subscribe queues subscribing to channels.
func (in *Installation) Subscribe(channels ...string) error {
	items, err := channelItems(channels)
	if err != nil {
		return err
	}
	return in.AddUnique("channels", items...)
}

// Unsubscribe queues unsubscribing from channels.
func (in *Installation) Unsubscribe(channels ...string) error {
	items, err := channelItems(channels)
	if err != nil {
		return err
	}
	return in.Remove("channels", items...)
}

func channelItems(channels []string) ([]any, error) {
	items := make([]any, len(channels))
	for i, ch := range channels {
		if !channelPattern.MatchString(ch) {
			return nil, connection.Errorf(constants.InvalidChannelName, "invalid channel name %q", ch)
		}
		items[i] = ch
	}
	return items, nil
}
