// Package commands implements the devhost-log subcommands.
package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devhost-project/devhost-go/pkg/log"
)

// FilterOptions holds the textual selection flags shared by the commands.
type FilterOptions struct {
	ConnID    string
	DeviceID  string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Channel   string
}

// Build converts the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{ConnectionID: o.ConnID}

	if o.DeviceID != "" {
		id, err := strconv.ParseUint(o.DeviceID, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid device-id: %w", err)
		}
		filter.DeviceID = id
	}
	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayer(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirection(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if o.Channel != "" {
		c, err := ParseChannel(o.Channel)
		if err != nil {
			return filter, err
		}
		filter.Channel = &c
	}
	return filter, nil
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "host":
		return log.LayerHost, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or host)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
	}
}

// ParseChannel parses a channel name (case-insensitive).
func ParseChannel(s string) (log.Channel, error) {
	switch strings.ToLower(s) {
	case "rio", "remoteio":
		return log.ChannelRemoteIO, nil
	case "coordinator":
		return log.ChannelCoordinator, nil
	default:
		return 0, fmt.Errorf("invalid channel: %s (must be rio or coordinator)", s)
	}
}
