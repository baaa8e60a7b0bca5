package bt

import "fmt"

// HeartRateMeasurement is a decoded Heart Rate Measurement notification.
type HeartRateMeasurement struct {
	BPM int
	// SensorContact is nil when the strap does not report contact.
	SensorContact *bool
	// EnergyExpendedKJ is nil when the field is absent.
	EnergyExpendedKJ *int
	// RRIntervalsS are beat-to-beat intervals in seconds.
	RRIntervalsS []float64
}

const (
	hrFlagUint16        = 0x01
	hrFlagContactStatus = 0x02
	hrFlagContactKnown  = 0x04
	hrFlagEnergy        = 0x08
	hrFlagRRIntervals   = 0x10
)

// ParseHeartRateMeasurement decodes characteristic 0x2A37.
// See: https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
func ParseHeartRateMeasurement(buf []byte) (HeartRateMeasurement, error) {
	var m HeartRateMeasurement
	if len(buf) < 2 {
		return m, fmt.Errorf("heart rate data too short: %d bytes", len(buf))
	}

	flags := buf[0]
	var offset int
	if flags&hrFlagUint16 != 0 {
		if len(buf) < 3 {
			return m, fmt.Errorf("heart rate UINT16 data too short: %d bytes", len(buf))
		}
		m.BPM = int(uint16(buf[1]) | uint16(buf[2])<<8)
		offset = 3
	} else {
		m.BPM = int(buf[1])
		offset = 2
	}

	if flags&hrFlagContactKnown != 0 {
		contact := flags&hrFlagContactStatus != 0
		m.SensorContact = &contact
	}

	if flags&hrFlagEnergy != 0 {
		if len(buf) < offset+2 {
			return m, fmt.Errorf("heart rate energy field truncated: %d bytes", len(buf))
		}
		energy := int(uint16(buf[offset]) | uint16(buf[offset+1])<<8)
		m.EnergyExpendedKJ = &energy
		offset += 2
	}

	if flags&hrFlagRRIntervals != 0 {
		for ; offset+1 < len(buf); offset += 2 {
			rr := uint16(buf[offset]) | uint16(buf[offset+1])<<8
			m.RRIntervalsS = append(m.RRIntervalsS, float64(rr)/1024)
		}
	}

	return m, nil
}
