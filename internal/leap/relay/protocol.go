package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// LEAP communique types.
const (
	opRead        = "ReadRequest"
	opSubscribe   = "SubscribeRequest"
	opCreate      = "CreateRequest"
	opConnect     = "Connect"
	opDisconnect  = "Disconnect"
	bodyException = "ExceptionDetail"
)

type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Href string `json:"href,omitempty"`
	Body any    `json:"body,omitempty"`
}

type connectRequest struct {
	ID      string `json:"id"`
	Op      string `json:"op"`
	HubID   string `json:"hub_id"`
	Address string `json:"address,omitempty"`
	CA      string `json:"ca"`
	Key     string `json:"key"`
	Cert    string `json:"cert"`
}

type response struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	BodyType string          `json:"body_type,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// push is a message on the event topic. Tag is the ID of the subscribe
// request the push answers, or empty when unsolicited.
type push struct {
	Tag     string       `json:"tag,omitempty"`
	Message leap.Message `json:"message"`
}

// statusCode extracts the numeric part of a status like "200 OK".
func (r response) statusCode() int {
	f := strings.Fields(r.Status)
	if len(f) == 0 {
		return 0
	}
	n, err := strconv.Atoi(f[0])
	if err != nil {
		return 0
	}
	return n
}

// err maps a response to the package's error values. An exception body is
// left for the caller to interpret.
func (r response) err(href string) error {
	if r.Error != "" {
		return fmt.Errorf("%w: %s", ErrRelay, r.Error)
	}
	code := r.statusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 404:
		return fmt.Errorf("%w: %s", leap.ErrNotFound, href)
	default:
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, href, r.Status)
	}
}

func (r response) decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("%w: empty %s body", ErrUnexpectedBody, r.BodyType)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnexpectedBody, r.BodyType, err)
	}
	return nil
}

type deviceList struct {
	Devices []leap.Device `json:"Devices"`
}

type buttonGroupBody struct {
	ButtonGroup     *leap.ButtonGroup     `json:"ButtonGroup"`
	ExceptionDetail *leap.ExceptionDetail `json:"ExceptionDetail"`
}

type buttonBody struct {
	Button *leap.Button `json:"Button"`
}

type areaBody struct {
	Area *leap.Area `json:"Area"`
}

type zoneStatusBody struct {
	ZoneStatus *leap.ZoneStatus `json:"ZoneStatus"`
}

type occupancyBody struct {
	OccupancyGroupStatuses []leap.OccupancyGroupStatus `json:"OccupancyGroupStatuses"`
}

type tiltCommand struct {
	Command struct {
		CommandType    string `json:"CommandType"`
		TiltParameters struct {
			Tilt int `json:"Tilt"`
		} `json:"TiltParameters"`
	} `json:"Command"`
}

func goToTilt(tilt int) tiltCommand {
	var c tiltCommand
	c.Command.CommandType = "GoToTilt"
	c.Command.TiltParameters.Tilt = tilt
	return c
}
