package ntcip

import (
	"bytes"
	"sync"
)

// agent answers SNMP requests the way a sign controller would.
type agent struct {
	mu          sync.Mutex
	values      map[string]func(Object)
	sets        []string
	status      int
	statusIndex int
}

func newAgent() *agent {
	return &agent{values: make(map[string]func(Object))}
}

func (a *agent) setSets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sets...)
}

func (a *agent) respond(req []byte) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, _, err := readTLV(req)
	if err != nil {
		return nil
	}
	_, rest, _ := readTLV(msg.value)
	community, rest, _ := readTLV(rest)
	pdu, _, _ := readTLV(rest)

	id, fields, _ := readTLV(pdu.value)
	reqID, _ := decodeInteger(id.value)
	_, fields, _ = readTLV(fields)
	_, fields, _ = readTLV(fields)
	list, _, _ := readTLV(fields)

	var objs []Object
	status, index := a.status, a.statusIndex
	for p, i := list.value, 1; len(p) > 0; i++ {
		var vb tlv
		vb, p, _ = readTLV(p)
		name, value, _ := readTLV(vb.value)
		oid, _ := decodeOID(name.value)
		objName, idx, ok := Lookup(oid)
		if !ok {
			status, index = errNoSuchName, i
			continue
		}
		obj, _ := New(objName, idx...)
		if pdu.tag == tagSetRequest {
			v, _, _ := readTLV(value)
			obj.decodeValue(v)
			a.sets = append(a.sets, objName)
		} else if fn := a.values[objName]; fn != nil {
			fn(obj)
		}
		objs = append(objs, obj)
	}
	return encodeResponse(string(community.value), int32(reqID), status, index, objs)
}

// encodeResponse builds a GetResponse carrying the objects' values.
func encodeResponse(community string, id int32, status, index int, objects []Object) []byte {
	var bindings bytes.Buffer
	for _, obj := range objects {
		oid, _ := encodeOID(obj.OID())
		var vb bytes.Buffer
		putTLV(&vb, tagOID, oid)
		obj.encodeValue(&vb)
		putTLV(&bindings, tagSequence, vb.Bytes())
	}
	var pdu bytes.Buffer
	putInteger(&pdu, int64(id))
	putInteger(&pdu, int64(status))
	putInteger(&pdu, int64(index))
	putTLV(&pdu, tagSequence, bindings.Bytes())

	var msg bytes.Buffer
	putInteger(&msg, snmpVersion1)
	putTLV(&msg, tagOctetString, []byte(community))
	putTLV(&msg, tagGetResponse, pdu.Bytes())

	var out bytes.Buffer
	putTLV(&out, tagSequence, msg.Bytes())
	return out.Bytes()
}
