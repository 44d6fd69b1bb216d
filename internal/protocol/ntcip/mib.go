package ntcip

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OID is an SNMP object identifier.
type OID []int

func (o OID) String() string {
	parts := make([]string, len(o))
	for i, v := range o {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Child returns o extended with sub.
func (o OID) Child(sub ...int) OID {
	out := make(OID, 0, len(o)+len(sub))
	out = append(out, o...)
	return append(out, sub...)
}

func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// MIB nodes (NTCIP 1201 global objects, NTCIP 1203 sign objects and the
// vendor extensions this engine polls).
var (
	nema = OID{1, 3, 6, 1, 4, 1, 1206}
	dms  = nema.Child(4, 2, 3)

	// NTCIP 1201
	globalConfiguration = nema.Child(4, 2, 6, 1)
	moduleTableEntry    = globalConfiguration.Child(3, 1)

	// NTCIP 1203
	fontDefinition    = dms.Child(3)
	fontEntry         = fontDefinition.Child(2, 1)
	multiCfg          = dms.Child(4)
	signControl       = dms.Child(6)
	illum             = dms.Child(7)
	statError         = dms.Child(9, 7)
	pixelFailureEntry = statError.Child(3, 1)
	lampStatusEntry   = statError.Child(26, 1)

	// Vendor extensions
	ledstarSignControl = OID{1, 3, 6, 1, 4, 1, 16, 1, 1, 1}
	skylineDmsStatus   = OID{1, 3, 6, 1, 4, 1, 18777, 2, 2}
)

// Kind is the value encoding of a MIB object.
type Kind int

const (
	KindInteger Kind = iota
	KindEnum
	KindOctetString
	KindDisplayString
	KindBitmap
	KindMessageID
)

// objectDef describes one MIB object; index values are appended to
// base to form the instance OID.
type objectDef struct {
	base    OID
	kind    Kind
	indexes int
	labels  []string
}

var registry = map[string]objectDef{
	"moduleMake":                   {base: moduleTableEntry.Child(3), kind: KindDisplayString, indexes: 1},
	"moduleModel":                  {base: moduleTableEntry.Child(4), kind: KindDisplayString, indexes: 1},
	"numFonts":                     {base: fontDefinition.Child(1, 0), kind: KindInteger},
	"fontVersionID":                {base: fontEntry.Child(7), kind: KindInteger, indexes: 1},
	"dmsColorScheme":               {base: multiCfg.Child(11, 0), kind: KindEnum, labels: colorSchemeLabels},
	"dmsCommunicationsLossMessage": {base: signControl.Child(12, 0), kind: KindMessageID},
	"dmsSWReset":                   {base: signControl.Child(2, 0), kind: KindInteger},
	"dmsIllumControl":              {base: illum.Child(1, 0), kind: KindEnum, labels: illumControlLabels},
	"dmsIllumBrightLevelStatus":    {base: illum.Child(5, 0), kind: KindInteger},
	"pixelFailureXLocation":        {base: pixelFailureEntry.Child(3), kind: KindInteger, indexes: 2},
	"dmsLampMfrStatus":             {base: lampStatusEntry.Child(3), kind: KindDisplayString, indexes: 1},
	"dmsLightSensorNumRows":        {base: statError.Child(29, 0), kind: KindInteger},
	"ledPixelHigh":                 {base: ledstarSignControl.Child(8, 0), kind: KindInteger},
	"sensorFailures":               {base: skylineDmsStatus.Child(17, 0), kind: KindBitmap},
}

// Illumination control methods of dmsIllumControl.
const (
	IllumUndefined = iota
	IllumOther
	IllumPhotocell
	IllumTimer
	IllumManual
)

var illumControlLabels = []string{"???", "other", "photocell", "timer", "manual"}

// Color schemes of dmsColorScheme.
const (
	ColorUndefined = iota
	ColorMonochrome1Bit
	ColorMonochrome8Bit
	ColorClassic
	Color24Bit
)

var colorSchemeLabels = []string{"???", "monochrome1bit", "monochrome8bit", "colorClassic", "color24bit"}

// PixelFailureDetection selects the pixel failure table.
type PixelFailureDetection int

const (
	PixelTest PixelFailureDetection = iota + 1
	MessageDisplay
)

// New creates the named object at the given table index.
func New(name string, index ...int) (Object, error) {
	def, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown MIB object: %s", name)
	}
	if len(index) != def.indexes {
		return nil, fmt.Errorf("%s takes %d index values, got %d", name, def.indexes, len(index))
	}
	oid := def.base.Child(index...)
	switch def.kind {
	case KindInteger:
		return &Integer{name: name, oid: oid}, nil
	case KindEnum:
		return &Enum{Integer: Integer{name: name, oid: oid}, labels: def.labels}, nil
	case KindBitmap:
		return &Bitmap{OctetString: OctetString{name: name, oid: oid}}, nil
	case KindMessageID:
		return &MessageIDCode{name: name, oid: oid}, nil
	default:
		return &OctetString{name: name, oid: oid, display: def.kind == KindDisplayString}, nil
	}
}

// Lookup returns the registered object whose instance is oid.
func Lookup(oid OID) (string, []int, bool) {
	for name, def := range registry {
		if len(oid) != len(def.base)+def.indexes {
			continue
		}
		if def.base.Equal(oid[:len(def.base)]) {
			return name, append([]int(nil), oid[len(def.base):]...), true
		}
	}
	return "", nil, false
}

// Names returns the registered object names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustNew(name string, index ...int) Object {
	obj, err := New(name, index...)
	if err != nil {
		panic(err)
	}
	return obj
}

func DmsIllumControl() *Enum { return mustNew("dmsIllumControl").(*Enum) }

func DmsIllumBrightLevelStatus() *Integer {
	return mustNew("dmsIllumBrightLevelStatus").(*Integer)
}

func DmsLightSensorNumRows() *Integer { return mustNew("dmsLightSensorNumRows").(*Integer) }

func DmsLampMfrStatus(row int) *OctetString {
	return mustNew("dmsLampMfrStatus", row).(*OctetString)
}

func PixelFailureXLocation(t PixelFailureDetection, row int) *Integer {
	return mustNew("pixelFailureXLocation", int(t), row).(*Integer)
}

func ModuleMake(row int) *OctetString { return mustNew("moduleMake", row).(*OctetString) }

func ModuleModel(row int) *OctetString { return mustNew("moduleModel", row).(*OctetString) }

func NumFonts() *Integer { return mustNew("numFonts").(*Integer) }

func FontVersionID(row int) *Integer { return mustNew("fontVersionID", row).(*Integer) }

func SensorFailures() *Bitmap { return mustNew("sensorFailures").(*Bitmap) }

func LedPixelHigh() *Integer { return mustNew("ledPixelHigh").(*Integer) }

func DmsSWReset() *Integer { return mustNew("dmsSWReset").(*Integer) }

func DmsColorScheme() *Enum { return mustNew("dmsColorScheme").(*Enum) }

func DmsCommunicationsLossMessage() *MessageIDCode {
	return mustNew("dmsCommunicationsLossMessage").(*MessageIDCode)
}
