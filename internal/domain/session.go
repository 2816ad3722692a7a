package domain

import "time"

// SensorSample is one timestamped reading from a three-axis sensor channel.
// Timestamp is seconds since the start of the recording.
type SensorSample struct {
	Timestamp float64 `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// BarometerSample is one timestamped pressure reading.
type BarometerSample struct {
	Timestamp        float64 `json:"timestamp"`
	Pressure         float64 `json:"pressure"`
	RelativeAltitude float64 `json:"relative_altitude"`
}

// WalkingSession is the raw multi-sensor bundle submitted by the client for
// one walking attempt. It is consumed by the analysis flow and never stored.
type WalkingSession struct {
	SessionID      string            `json:"session_id"`
	UserID         string            `json:"user_id"`
	Accelerometer  []SensorSample    `json:"accelerometer,omitempty"`
	Gyroscope      []SensorSample    `json:"gyroscope,omitempty"`
	Magnetometer   []SensorSample    `json:"magnetometer,omitempty"`
	DeviceMotion   []SensorSample    `json:"device_motion,omitempty"`
	Barometer      []BarometerSample `json:"barometer,omitempty"`
	PedometerSteps int               `json:"pedometer_steps,omitempty"`
}

// HasPrimaryChannel reports whether at least one of the channels the
// analysis engine requires (accelerometer or gyroscope) carries samples.
func (s WalkingSession) HasPrimaryChannel() bool {
	return len(s.Accelerometer) > 0 || len(s.Gyroscope) > 0
}

// SensorsPresent lists the channels that carry at least one sample.
func (s WalkingSession) SensorsPresent() []string {
	out := make([]string, 0, 6)
	if len(s.Accelerometer) > 0 {
		out = append(out, "accelerometer")
	}
	if len(s.Gyroscope) > 0 {
		out = append(out, "gyroscope")
	}
	if len(s.Magnetometer) > 0 {
		out = append(out, "magnetometer")
	}
	if len(s.DeviceMotion) > 0 {
		out = append(out, "device_motion")
	}
	if len(s.Barometer) > 0 {
		out = append(out, "barometer")
	}
	if s.PedometerSteps > 0 {
		out = append(out, "pedometer")
	}
	return out
}

// Duration derives the recording span from the widest primary channel.
func (s WalkingSession) Duration() time.Duration {
	span := 0.0
	for _, channel := range [][]SensorSample{s.Accelerometer, s.Gyroscope, s.DeviceMotion} {
		if len(channel) < 2 {
			continue
		}
		if d := channel[len(channel)-1].Timestamp - channel[0].Timestamp; d > span {
			span = d
		}
	}
	return time.Duration(span * float64(time.Second))
}

// EstimatedSteps returns a cheap step estimate for pre-analysis screening.
// The pedometer count wins when present; otherwise upward crossings of the
// mean accelerometer magnitude stand in for steps. The metrics collaborator
// recomputes the authoritative count.
func (s WalkingSession) EstimatedSteps() int {
	if s.PedometerSteps > 0 {
		return s.PedometerSteps
	}
	if len(s.Accelerometer) < 2 {
		return 0
	}

	magnitudes := make([]float64, len(s.Accelerometer))
	var sum float64
	for i, sample := range s.Accelerometer {
		m := sample.X*sample.X + sample.Y*sample.Y + sample.Z*sample.Z
		magnitudes[i] = m
		sum += m
	}
	mean := sum / float64(len(magnitudes))

	steps := 0
	above := magnitudes[0] > mean
	for _, m := range magnitudes[1:] {
		if !above && m > mean {
			steps++
			above = true
		} else if m <= mean {
			above = false
		}
	}
	return steps
}
