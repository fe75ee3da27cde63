// ABOUTME: Flow command grammar: /checkin-{hotelId}, /demo, /feedback-{hotelId}-{stayId}
// ABOUTME: Explicit commands always win over any existing conversation state

package router

import (
	"regexp"
	"strings"

	"github.com/lobbybee/concierge-gateway/internal/flow"
)

// Flow command names
const (
	CommandCheckin  = "checkin"
	CommandDemo     = "demo"
	CommandFeedback = "feedback"
)

var (
	checkinCommandRe  = regexp.MustCompile(`(?i)^/checkin[-\s]+([a-zA-Z0-9\-]+)$`)
	feedbackCommandRe = regexp.MustCompile(`(?i)^/feedback[-\s]+([a-zA-Z0-9]+)[-\s]+([a-zA-Z0-9\-]+)$`)
)

// Command is a parsed flow-start instruction
type Command struct {
	Flow    string
	HotelID string
	StayID  string
}

// ParseCommand recognizes explicit flow commands in an inbound event. The
// demo flow can also be started by its menu button id.
func ParseCommand(ev *flow.Event) (*Command, bool) {
	input := strings.TrimSpace(ev.Input())
	if input == "" {
		return nil, false
	}

	if m := checkinCommandRe.FindStringSubmatch(input); m != nil {
		return &Command{Flow: CommandCheckin, HotelID: m[1]}, true
	}
	if m := feedbackCommandRe.FindStringSubmatch(input); m != nil {
		return &Command{Flow: CommandFeedback, HotelID: m[1], StayID: m[2]}, true
	}
	if strings.EqualFold(input, "/demo") || ev.SelectionID == "start_demo" {
		return &Command{Flow: CommandDemo}, true
	}
	return nil, false
}
