package mndot

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

// MemoryProp reads Length bytes at Address, or writes Data there.
type MemoryProp struct {
	Drop    int
	Address uint16
	Length  int
	Data    []byte
}

func (p *MemoryProp) EncodeQuery(buf *bytes.Buffer) error {
	var req [3]byte
	binary.BigEndian.PutUint16(req[:2], p.Address)
	req[2] = byte(p.Length)
	return putMessage(buf, p.Drop, catReadMemory, req[:])
}

func (p *MemoryProp) DecodeQuery(resp []byte) error {
	data, err := parseResponse(p.Drop, resp)
	if err != nil {
		return err
	}
	if len(data) != p.Length {
		return comm.Parsing("memory read at 0x%04X: %d bytes, expected %d", p.Address, len(data), p.Length)
	}
	p.Data = append(p.Data[:0], data...)
	return nil
}

func (p *MemoryProp) EncodeStore(buf *bytes.Buffer) error {
	req := make([]byte, 2, 2+len(p.Data))
	binary.BigEndian.PutUint16(req, p.Address)
	return putMessage(buf, p.Drop, catWriteMemory, append(req, p.Data...))
}

func (p *MemoryProp) DecodeStore(resp []byte) error {
	return ack(p.Drop, resp)
}

func ack(drop int, resp []byte) error {
	data, err := parseResponse(drop, resp)
	if err != nil {
		return err
	}
	if len(data) != 0 {
		return comm.Parsing("unexpected payload % X", data)
	}
	return nil
}

// ClockProp sets the controller clock.
type ClockProp struct {
	Drop int
	Time time.Time
}

func (p *ClockProp) EncodeStore(buf *bytes.Buffer) error {
	t := p.Time
	var payload bytes.Buffer
	for _, v := range []int{int(t.Month()), t.Day(), t.Year() % 100, t.Hour(), t.Minute(), t.Second()} {
		if err := comm.PutBCD2(&payload, v); err != nil {
			return err
		}
	}
	return putMessage(buf, p.Drop, catSynchronizeTime, payload.Bytes())
}

func (p *ClockProp) DecodeStore(resp []byte) error { return ack(p.Drop, resp) }

// RestartProp performs a level 1 restart.
type RestartProp struct {
	Drop int
}

func (p *RestartProp) EncodeStore(buf *bytes.Buffer) error {
	return putMessage(buf, p.Drop, catLevel1Restart, nil)
}

func (p *RestartProp) DecodeStore(resp []byte) error { return ack(p.Drop, resp) }

// RecordCountProp queries the number of stored event records.
type RecordCountProp struct {
	Drop  int
	Count int
}

func (p *RecordCountProp) EncodeQuery(buf *bytes.Buffer) error {
	return putMessage(buf, p.Drop, catQueryRecord, nil)
}

func (p *RecordCountProp) DecodeQuery(resp []byte) error {
	data, err := parseResponse(p.Drop, resp)
	if err != nil {
		return err
	}
	if len(data) != 1 {
		return comm.Parsing("record count of %d bytes", len(data))
	}
	p.Count = int(data[0])
	return nil
}
