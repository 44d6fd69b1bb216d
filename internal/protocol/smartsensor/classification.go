package smartsensor

import (
	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// Default vehicle length classes, in feet.
const (
	DefaultShortMin  = 0
	DefaultShortMax  = 21
	DefaultMediumMin = DefaultShortMax + 1
	DefaultMediumMax = 35
	DefaultLongMin   = DefaultMediumMax + 1
	DefaultLongMax   = 328
)

const (
	classificationAddress = 0x020000
	classificationLength  = 40
)

// Classification holds the vehicle length class thresholds.
type Classification struct {
	ShortMin, ShortMax   int
	MediumMin, MediumMax int
	LongMin, LongMax     int
}

// DefaultClassification returns the factory thresholds.
func DefaultClassification() Classification {
	return Classification{
		ShortMin: DefaultShortMin, ShortMax: DefaultShortMax,
		MediumMin: DefaultMediumMin, MediumMax: DefaultMediumMax,
		LongMin: DefaultLongMin, LongMax: DefaultLongMax,
	}
}

func (c *Classification) IsDefault() bool {
	return *c == DefaultClassification()
}

func (c *Classification) address() int { return classificationAddress }

func (c *Classification) length() int { return classificationLength }

func (c *Classification) format() string {
	return comm.HexField(c.ShortMin, 4) + comm.HexField(c.ShortMax, 4) + comm.HexField(0, 8) +
		comm.HexField(c.MediumMin, 4) + comm.HexField(c.MediumMax, 4) + comm.HexField(0, 8) +
		comm.HexField(c.LongMin, 4) + comm.HexField(c.LongMax, 4)
}

// parse leaves c unchanged on error.
func (c *Classification) parse(buf string) error {
	next := *c
	fields := []struct {
		dst        *int
		start, end int
	}{
		{&next.ShortMin, 0, 4},
		{&next.ShortMax, 4, 8},
		{&next.MediumMin, 16, 20},
		{&next.MediumMax, 20, 24},
		{&next.LongMin, 32, 36},
		{&next.LongMax, 36, 40},
	}
	for _, f := range fields {
		v, err := comm.ParseHexField(buf[f.start:f.end])
		if err != nil {
			return comm.Parsing("invalid classification lengths: %s", buf)
		}
		*f.dst = v
	}
	*c = next
	return nil
}

// ClassificationProp reads or writes the classification of the sensor at
// drop.
func ClassificationProp(drop int, c *Classification) *MemoryProp {
	return &MemoryProp{Drop: drop, mem: c}
}
