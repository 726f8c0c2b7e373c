package history

import (
	"encoding/json"
	"time"

	"plant-monitor/backend/internal/types"
)

// Channel names a sensor stream. Each channel owns one Buffer and one broadcast event.
type Channel string

const (
	ChannelSoil  Channel = "soil"
	ChannelLight Channel = "light"
)

// DefaultChannels are the sensor streams relayed from upstream.
func DefaultChannels() []Channel {
	return []Channel{ChannelSoil, ChannelLight}
}

// EventName is the name of the event broadcast for new readings on this channel.
func (c Channel) EventName() string {
	return string(c) + "_update"
}

// Reading is one timestamped sensor value.
type Reading struct {
	Time  time.Time
	Value float64
}

// NewReading creates a reading stamped with the current wall clock.
func NewReading(value float64) Reading {
	return Reading{Time: time.Now(), Value: value}
}

// Point converts the reading to its wire form.
func (r Reading) Point() types.Point {
	return types.Point{Time: r.Time.UnixMilli(), Value: r.Value}
}

func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Point())
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	var p types.Point
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	r.Time = time.UnixMilli(p.Time)
	r.Value = p.Value

	return nil
}
