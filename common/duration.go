package common

import (
	"fmt"
	"strconv"
	"time"
)

// Duration accepts "1s"-style strings or plain numbers (milliseconds) in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var stringValue string
	if err := unmarshal(&stringValue); err != nil {
		return fmt.Errorf("cannot unmarshal duration value: %w", err)
	}
	if ms, err := strconv.ParseInt(stringValue, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	duration, err := time.ParseDuration(stringValue)
	if err != nil {
		return fmt.Errorf("invalid duration format: %v", err)
	}
	*d = Duration(duration)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return SonicCfg.Marshal(time.Duration(d).String())
}
