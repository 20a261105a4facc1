package wasmhost

// wasmBuf assembles the small guest modules the tests instantiate.
type wasmBuf []byte

func (b *wasmBuf) put(v ...byte) { *b = append(*b, v...) }

// u32 writes unsigned LEB128.
func (b *wasmBuf) u32(v uint32) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.put(c)
		if v == 0 {
			return
		}
	}
}

func (b *wasmBuf) name(s string) {
	b.u32(uint32(len(s)))
	b.put([]byte(s)...)
}

func (b *wasmBuf) section(id byte, body wasmBuf) {
	b.put(id)
	b.u32(uint32(len(body)))
	b.put(body...)
}

const (
	opLocalGet = 0x20
	opCall     = 0x10
	opI32Const = 0x41
	opI32Store = 0x36
	opEnd      = 0x0b
)

// guestModule builds a module importing every smzmq native and exporting
// a forwarding wrapper "call_<native>" for each, plus one page of memory.
// With onPoll set it also exports smzmq_on_poll, which stores its three
// arguments at offsets 0, 4 and 8.
func guestModule(onPoll bool) []byte {
	n := uint32(len(natives))
	out := wasmBuf{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var types wasmBuf
	types.u32(n + 1)
	for _, nt := range natives {
		types.put(0x60)
		types.u32(uint32(len(nt.params)))
		for range nt.params {
			types.put(0x7f)
		}
		types.put(0x01, 0x7f)
	}
	types.put(0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x00)
	out.section(1, types)

	var imports wasmBuf
	imports.u32(n)
	for i, nt := range natives {
		imports.name(ModuleName)
		imports.name(nt.name)
		imports.put(0x00)
		imports.u32(uint32(i))
	}
	out.section(2, imports)

	defined := n
	if onPoll {
		defined++
	}
	var funcs wasmBuf
	funcs.u32(defined)
	for i := uint32(0); i < defined; i++ {
		funcs.u32(i)
	}
	out.section(3, funcs)

	out.section(5, wasmBuf{0x01, 0x00, 0x01})

	var exports wasmBuf
	exports.u32(1 + defined)
	exports.name("memory")
	exports.put(0x02, 0x00)
	for i, nt := range natives {
		exports.name("call_" + nt.name)
		exports.put(0x00)
		exports.u32(n + uint32(i))
	}
	if onPoll {
		exports.name(PollExport)
		exports.put(0x00)
		exports.u32(2 * n)
	}
	out.section(7, exports)

	var code wasmBuf
	code.u32(defined)
	for i, nt := range natives {
		body := wasmBuf{0x00}
		for p := range nt.params {
			body.put(opLocalGet)
			body.u32(uint32(p))
		}
		body.put(opCall)
		body.u32(uint32(i))
		body.put(opEnd)
		code.u32(uint32(len(body)))
		code.put(body...)
	}
	if onPoll {
		body := wasmBuf{0x00}
		for p := uint32(0); p < 3; p++ {
			body.put(opI32Const)
			body.u32(p * 4)
			body.put(opLocalGet)
			body.u32(p)
			body.put(opI32Store, 0x02, 0x00)
		}
		body.put(opEnd)
		code.u32(uint32(len(body)))
		code.put(body...)
	}
	out.section(10, code)

	return out
}
