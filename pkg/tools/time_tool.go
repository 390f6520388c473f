package tools

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

type timeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema_description:"IANA timezone, for example Europe/Stockholm. Defaults to UTC."`
}

type TimeTool struct {
	now func() time.Time
}

var Time = &TimeTool{now: time.Now}

var timeSpec = pub_models.Specification{
	Name:        "get_time",
	Description: "Get the current date and time, optionally in a specific timezone.",
	Inputs:      schemaOf[timeArgs](),
}

func (t *TimeTool) Call(_ context.Context, input pub_models.Input) (string, error) {
	args, err := decodeInput[timeArgs](input)
	if err != nil {
		return "", err
	}
	tz := args.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("unknown timezone: '%v'", tz)
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	n := now().In(loc)
	return fmt.Sprintf("%v (%v, %v)", n.Format(time.RFC3339), n.Weekday(), loc.String()), nil
}

func (t *TimeTool) Specification() pub_models.Specification {
	return timeSpec
}
