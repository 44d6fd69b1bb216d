package types

// RegisterProfile describes the registers of a Modbus field device.
type RegisterProfile struct {
	Profile   ProfileInfo          `json:"profile" yaml:"profile"`
	Registers []RegisterDefinition `json:"registers" yaml:"registers"`
	Groups    []RegisterGroup      `json:"register_groups,omitempty" yaml:"register_groups,omitempty"`
}

type ProfileInfo struct {
	ID          string `json:"id" yaml:"id"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Model       string `json:"model" yaml:"model"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type RegisterDefinition struct {
	Name        string       `json:"name" yaml:"name"`
	Address     uint16       `json:"address" yaml:"address"`
	Type        RegisterType `json:"type" yaml:"type"`
	DataType    DataType     `json:"data_type" yaml:"data_type"`
	ScaleFactor float64      `json:"scale_factor,omitempty" yaml:"scale_factor,omitempty"`
	Unit        string       `json:"unit,omitempty" yaml:"unit,omitempty"`
	Access      AccessType   `json:"access" yaml:"access"`
}

// RegisterGroup assigns registers to a poll class ("30s" or "5m").
type RegisterGroup struct {
	Name      string   `json:"name" yaml:"name"`
	Poll      string   `json:"poll" yaml:"poll"`
	Registers []string `json:"registers" yaml:"registers"`
}

// Register returns the named register definition.
func (p *RegisterProfile) Register(name string) (*RegisterDefinition, bool) {
	for i := range p.Registers {
		if p.Registers[i].Name == name {
			return &p.Registers[i], true
		}
	}
	return nil, false
}

type RegisterType string

const (
	RegisterTypeCoil            RegisterType = "coil"
	RegisterTypeDiscreteInput   RegisterType = "discrete_input"
	RegisterTypeInputRegister   RegisterType = "input_register"
	RegisterTypeHoldingRegister RegisterType = "holding_register"
)

type DataType string

const (
	DataTypeBool    DataType = "bool"
	DataTypeInt16   DataType = "int16"
	DataTypeUint16  DataType = "uint16"
	DataTypeInt32   DataType = "int32"
	DataTypeUint32  DataType = "uint32"
	DataTypeFloat32 DataType = "float32"
)

type AccessType string

const (
	AccessTypeReadOnly  AccessType = "read_only"
	AccessTypeReadWrite AccessType = "read_write"
)
