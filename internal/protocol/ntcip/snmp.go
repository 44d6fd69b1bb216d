package ntcip

import (
	"bytes"
	"fmt"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

const snmpVersion1 = 0

// SNMP error-status values.
const (
	errNoError    = 0
	errTooBig     = 1
	errNoSuchName = 2
	errBadValue   = 3
	errReadOnly   = 4
	errGenErr     = 5
)

var errorStatusNames = map[int]string{
	errTooBig:     "tooBig",
	errNoSuchName: "noSuchName",
	errBadValue:   "badValue",
	errReadOnly:   "readOnly",
	errGenErr:     "genErr",
}

// Request is one SNMP GET or SET of a batch of objects. It is both a
// comm.QueryProp (GET) and a comm.StoreProp (SET).
type Request struct {
	Community string
	ID        int32
	Objects   []Object
}

func (r *Request) EncodeQuery(buf *bytes.Buffer) error {
	return r.encode(buf, tagGetRequest, false)
}

func (r *Request) DecodeQuery(resp []byte) error {
	return r.decode(resp, true)
}

func (r *Request) EncodeStore(buf *bytes.Buffer) error {
	return r.encode(buf, tagSetRequest, true)
}

// DecodeStore checks the acknowledgment. Values echoed by the agent are
// not copied back.
func (r *Request) DecodeStore(resp []byte) error {
	return r.decode(resp, false)
}

func (r *Request) encode(buf *bytes.Buffer, pduTag byte, withValues bool) error {
	var bindings bytes.Buffer
	for _, obj := range r.Objects {
		oid, err := encodeOID(obj.OID())
		if err != nil {
			return &comm.ConfigError{Controller: obj.Name(), Reason: err.Error()}
		}
		var vb bytes.Buffer
		putTLV(&vb, tagOID, oid)
		if withValues {
			obj.encodeValue(&vb)
		} else {
			putTLV(&vb, tagNull, nil)
		}
		putTLV(&bindings, tagSequence, vb.Bytes())
	}

	var pdu bytes.Buffer
	putInteger(&pdu, int64(r.ID))
	putInteger(&pdu, errNoError)
	putInteger(&pdu, 0)
	putTLV(&pdu, tagSequence, bindings.Bytes())

	var msg bytes.Buffer
	putInteger(&msg, snmpVersion1)
	putTLV(&msg, tagOctetString, []byte(r.Community))
	putTLV(&msg, pduTag, pdu.Bytes())

	putTLV(buf, tagSequence, msg.Bytes())
	return nil
}

func (r *Request) decode(resp []byte, copyValues bool) error {
	msg, _, err := readTLV(resp)
	if err != nil {
		return err
	}
	if err := expect(msg, tagSequence); err != nil {
		return err
	}

	version, rest, err := readTLV(msg.value)
	if err != nil {
		return err
	}
	if v, err := decodeInteger(version.value); err != nil || v != snmpVersion1 {
		return comm.Parsing("unsupported SNMP version % X", version.value)
	}
	if _, rest, err = readTLV(rest); err != nil {
		return err
	}
	pdu, _, err := readTLV(rest)
	if err != nil {
		return err
	}
	if err := expect(pdu, tagGetResponse); err != nil {
		return err
	}

	fields := make([]int64, 3)
	rest = pdu.value
	for i := range fields {
		var f tlv
		if f, rest, err = readTLV(rest); err != nil {
			return err
		}
		if err := expect(f, tagInteger); err != nil {
			return err
		}
		if fields[i], err = decodeInteger(f.value); err != nil {
			return err
		}
	}
	if int32(fields[0]) != r.ID {
		return comm.Parsing("request id mismatch: sent %d, got %d", r.ID, fields[0])
	}
	if status := int(fields[1]); status != errNoError {
		return r.statusError(status, int(fields[2]))
	}

	list, _, err := readTLV(rest)
	if err != nil {
		return err
	}
	if err := expect(list, tagSequence); err != nil {
		return err
	}
	return r.decodeBindings(list.value, copyValues)
}

func (r *Request) decodeBindings(p []byte, copyValues bool) error {
	i := 0
	for ; len(p) > 0; i++ {
		var vb tlv
		var err error
		if vb, p, err = readTLV(p); err != nil {
			return err
		}
		if i >= len(r.Objects) {
			return comm.Parsing("unexpected varbind %d", i+1)
		}
		name, rest, err := readTLV(vb.value)
		if err != nil {
			return err
		}
		oid, err := decodeOID(name.value)
		if err != nil {
			return err
		}
		obj := r.Objects[i]
		if !oid.Equal(obj.OID()) {
			return comm.Parsing("varbind %d: expected %s, got %s", i+1, obj.OID(), oid)
		}
		if !copyValues {
			continue
		}
		value, _, err := readTLV(rest)
		if err != nil {
			return err
		}
		if err := obj.decodeValue(value); err != nil {
			return err
		}
	}
	if i < len(r.Objects) {
		return comm.Parsing("missing varbind %d of %d", i+1, len(r.Objects))
	}
	return nil
}

// statusError maps an SNMP error-status to a parsing error naming the
// offending object.
func (r *Request) statusError(status, index int) error {
	name := errorStatusNames[status]
	if name == "" {
		name = fmt.Sprintf("status %d", status)
	}
	if index > 0 && index <= len(r.Objects) {
		return comm.Parsing("%s: %s", name, r.Objects[index-1].Name())
	}
	return comm.Parsing("%s", name)
}
