package leap

import (
	"strconv"
	"strings"
)

// Href is a LEAP resource reference, e.g. {"href": "/device/12"}.
type Href struct {
	Href string `json:"href"`
}

// Device is a device record as listed by the hub.
type Device struct {
	Href               string   `json:"href"`
	Name               string   `json:"Name"`
	FullyQualifiedName []string `json:"FullyQualifiedName"`
	SerialNumber       uint32   `json:"SerialNumber"`
	ModelNumber        string   `json:"ModelNumber"`
	DeviceType         string   `json:"DeviceType"`
	LocalZones         []Href   `json:"LocalZones,omitempty"`
	AssociatedArea     *Href    `json:"AssociatedArea,omitempty"`
	ButtonGroups       []Href   `json:"ButtonGroups,omitempty"`
}

// DisplayName joins the fully qualified name path with spaces, falling back
// to Name for devices that report no path.
func (d Device) DisplayName() string {
	if len(d.FullyQualifiedName) == 0 {
		return d.Name
	}
	return strings.Join(d.FullyQualifiedName, " ")
}

// Serial returns the serial number in its decimal string form.
func (d Device) Serial() string {
	return strconv.FormatUint(uint64(d.SerialNumber), 10)
}

// ExceptionDetail is returned in place of a resource the hub no longer has.
type ExceptionDetail struct {
	Message string `json:"Message"`
}

// ButtonGroup is a group of buttons on a keypad or remote.
type ButtonGroup struct {
	Href    string `json:"href"`
	Buttons []Href `json:"Buttons,omitempty"`

	// AffectedZones is non-empty when the group is programmed to control
	// hub-side zones.
	AffectedZones []Href `json:"AffectedZones,omitempty"`

	// ExceptionDetail is set when the hub answered with an exception for
	// this group instead of a definition.
	ExceptionDetail *ExceptionDetail `json:"ExceptionDetail,omitempty"`
}

// Button is a single physical button.
type Button struct {
	Href         string `json:"href"`
	Name         string `json:"Name"`
	ButtonNumber int    `json:"ButtonNumber"`
	Parent       Href   `json:"Parent"`
}

// ButtonEventType is a raw edge reported for a button.
type ButtonEventType string

// Edges delivered by the hub. Other values (e.g. LongHold on some keypads)
// are passed through unchanged and ignored by the classifier.
const (
	ButtonPress   ButtonEventType = "Press"
	ButtonRelease ButtonEventType = "Release"
)

// ButtonEvent carries the edge type of a button status.
type ButtonEvent struct {
	EventType ButtonEventType `json:"EventType"`
}

// ButtonStatus is the body of a OneButtonStatusEvent.
type ButtonStatus struct {
	Button      Href        `json:"Button"`
	ButtonEvent ButtonEvent `json:"ButtonEvent"`
}

// OccupancyStatus is the reported state of an occupancy group.
type OccupancyStatus string

const (
	Occupied   OccupancyStatus = "Occupied"
	Unoccupied OccupancyStatus = "Unoccupied"
	Unknown    OccupancyStatus = "Unknown"
)

// OccupancyGroupStatus pairs an occupancy group with its state.
type OccupancyGroupStatus struct {
	OccupancyGroup  Href            `json:"OccupancyGroup"`
	OccupancyStatus OccupancyStatus `json:"OccupancyStatus"`
}

// Area is a room or zone grouping on the hub.
type Area struct {
	Href                      string `json:"href"`
	Name                      string `json:"Name"`
	AssociatedOccupancyGroups []Href `json:"AssociatedOccupancyGroups,omitempty"`
}

// ZoneStatus is the state of a zone. Only tilt is modeled.
type ZoneStatus struct {
	Zone Href `json:"Zone"`
	Tilt int  `json:"Tilt"`
}

// DeviceHeard reports that the hub heard a device it may not list yet.
type DeviceHeard struct {
	SerialNumber uint32 `json:"SerialNumber"`
	DeviceType   string `json:"DeviceType"`
}

// Message body types carried by unsolicited messages.
const (
	BodyOneButtonStatusEvent         = "OneButtonStatusEvent"
	BodyOneZoneStatus                = "OneZoneStatus"
	BodyMultipleOccupancyGroupStatus = "MultipleOccupancyGroupStatus"
	BodyOneDeviceHeard               = "OneDeviceHeardDefinition"
)

// Message is an unsolicited push from the hub. Exactly one body pointer is
// set, matching BodyType; unknown body types carry none.
type Message struct {
	BodyType string `json:"BodyType"`
	URL      string `json:"Url,omitempty"`

	ButtonStatus           *ButtonStatus          `json:"ButtonStatus,omitempty"`
	ZoneStatus             *ZoneStatus            `json:"ZoneStatus,omitempty"`
	OccupancyGroupStatuses []OccupancyGroupStatus `json:"OccupancyGroupStatuses,omitempty"`
	DeviceHeard            *DeviceHeard           `json:"DeviceHeard,omitempty"`
}
