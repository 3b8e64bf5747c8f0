package leap

import "context"

// Unsubscribe cancels a subscription. It is safe to call more than once.
type Unsubscribe func()

// Session is a connected LEAP session to one hub.
//
// All methods are safe for concurrent use. Handlers passed to the Subscribe
// methods and to Unsolicited are called from the session's delivery
// goroutine, in arrival order; they must not block.
type Session interface {
	// HubID returns the identity of the hub this session is connected to.
	HubID() string

	Devices(ctx context.Context) ([]Device, error)
	ButtonGroups(ctx context.Context, device Device) ([]ButtonGroup, error)
	Buttons(ctx context.Context, group ButtonGroup) ([]Button, error)
	Area(ctx context.Context, href string) (Area, error)

	// SubscribeButton delivers every status event for one button.
	SubscribeButton(ctx context.Context, button Button, fn func(ButtonStatus)) (Unsubscribe, error)

	// SubscribeOccupancy delivers every occupancy update for the hub. The
	// initial statuses of all groups are returned with the subscription.
	SubscribeOccupancy(ctx context.Context, fn func([]OccupancyGroupStatus)) ([]OccupancyGroupStatus, Unsubscribe, error)

	ReadTilt(ctx context.Context, zone Href) (int, error)
	WriteTilt(ctx context.Context, zone Href, tilt int) error

	// Unsolicited delivers pushes not tied to a subscription, including
	// device-heard notifications and button events for known buttons.
	Unsolicited(fn func(Message)) Unsubscribe

	Close() error
}

// Connector opens sessions to hubs.
type Connector interface {
	Connect(ctx context.Context, hubID, address string, creds Credentials) (Session, error)
}
