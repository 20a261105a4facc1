package wasmhost

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-zmq/errors"
)

// memory is bounds-checked access to a guest's linear memory.
type memory struct {
	mem api.Memory
}

func (m memory) outOfRange(op string, offset, length uint32) error {
	var size uint32
	if m.mem != nil {
		size = m.mem.Size()
	}
	return errors.New(errors.PhaseHost, errors.KindOutOfBounds).
		Op(op).
		Detail("guest memory [%d, %d) outside %d bytes", offset, uint64(offset)+uint64(length), size).
		Build()
}

// read copies length bytes starting at offset.
func (m memory) read(op string, offset, length uint32) ([]byte, error) {
	if m.mem == nil {
		return nil, errors.NotInitialized(errors.PhaseHost, "guest memory")
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.outOfRange(op, offset, length)
	}
	return append([]byte(nil), data...), nil
}

func (m memory) readString(op string, offset, length uint32) (string, error) {
	data, err := m.read(op, offset, length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m memory) write(op string, offset uint32, data []byte) error {
	if m.mem == nil {
		return errors.NotInitialized(errors.PhaseHost, "guest memory")
	}
	if !m.mem.Write(offset, data) {
		return m.outOfRange(op, offset, uint32(len(data)))
	}
	return nil
}
