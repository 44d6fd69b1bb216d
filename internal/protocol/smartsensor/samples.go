package smartsensor

import (
	"bytes"
	"fmt"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const laneDigits = 12

// LaneSample is the binned traffic data of one lane. Occupancy is in
// percent.
type LaneSample struct {
	Volume    int
	Occupancy float64
	Speed     int
}

// BinnedSamplesProp reads the traffic data accumulated since the last
// request.
type BinnedSamplesProp struct {
	Drop     int
	Interval int
	Lanes    []LaneSample
}

func (p *BinnedSamplesProp) EncodeQuery(buf *bytes.Buffer) error {
	putRequest(buf, p.Drop, cmdBinnedData)
	return nil
}

func (p *BinnedSamplesProp) DecodeQuery(resp []byte) error {
	data, err := payload(p.Drop, resp)
	if err != nil {
		return err
	}
	if len(data) < 4 || (len(data)-4)%laneDigits != 0 {
		return comm.Parsing("binned data of %d digits: %q", len(data), data)
	}
	if p.Interval, err = comm.ParseHexField(data[:4]); err != nil {
		return err
	}
	lanes := make([]LaneSample, 0, (len(data)-4)/laneDigits)
	for i := 4; i < len(data); i += laneDigits {
		vol, err := comm.ParseHexField(data[i : i+4])
		if err != nil {
			return err
		}
		occ, err := comm.ParseHexField(data[i+4 : i+8])
		if err != nil {
			return err
		}
		speed, err := comm.ParseHexField(data[i+8 : i+12])
		if err != nil {
			return err
		}
		if occ > 1000 {
			return comm.Parsing("lane %d occupancy %d out of range", len(lanes)+1, occ)
		}
		lanes = append(lanes, LaneSample{Volume: vol, Occupancy: float64(occ) / 10, Speed: speed})
	}
	p.Lanes = lanes
	return nil
}

func (p *BinnedSamplesProp) String() string {
	return fmt.Sprintf("binned samples: %d lanes, %ds", len(p.Lanes), p.Interval)
}

// VersionProp reads the sensor firmware version.
type VersionProp struct {
	Drop    int
	Version string
}

func (p *VersionProp) EncodeQuery(buf *bytes.Buffer) error {
	putRequest(buf, p.Drop, cmdVersion)
	return nil
}

func (p *VersionProp) DecodeQuery(resp []byte) error {
	data, err := payload(p.Drop, resp)
	if err != nil {
		return err
	}
	if data == "" {
		return comm.Parsing("empty version")
	}
	p.Version = data
	return nil
}
