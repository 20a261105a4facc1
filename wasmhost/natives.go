package wasmhost

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

type native struct {
	call    func(g *Guest, ctx context.Context, stack []uint64)
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func i32s(n int) []api.ValueType {
	t := make([]api.ValueType, n)
	for i := range t {
		t[i] = api.ValueTypeI32
	}
	return t
}

func u32(v uint64) uint32 { return api.DecodeU32(v) }
func s32(v uint64) int32  { return api.DecodeI32(v) }

var natives = []native{
	{
		name: "create_socket", params: i32s(1), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeU32(g.CreateSocket(s32(s[0])))
		},
	},
	{
		name: "socket_connect", params: i32s(3), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.Connect(u32(s[0]), u32(s[1]), u32(s[2])))
		},
	},
	{
		name: "socket_bind", params: i32s(3), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.Bind(u32(s[0]), u32(s[1]), u32(s[2])))
		},
	},
	{
		name: "socket_subscribe", params: i32s(3), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.Subscribe(u32(s[0]), u32(s[1]), u32(s[2])))
		},
	},
	{
		name: "socket_unsubscribe", params: i32s(3), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.Unsubscribe(u32(s[0]), u32(s[1]), u32(s[2])))
		},
	},
	{
		name: "socket_setopt", params: i32s(4), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.SetOption(u32(s[0]), s32(s[1]), u32(s[2]), u32(s[3])))
		},
	},
	{
		name: "socket_getopt", params: i32s(4), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.GetOption(u32(s[0]), s32(s[1]), u32(s[2]), u32(s[3])))
		},
	},
	{
		name: "socket_send", params: i32s(3), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.Send(u32(s[0]), u32(s[1]), s32(s[2])))
		},
	},
	{
		name: "socket_recv", params: i32s(2), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeU32(g.Recv(u32(s[0]), s32(s[1])))
		},
	},
	{
		name: "socket_poll", params: i32s(3), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.Poll(u32(s[0]), u32(s[1]), s32(s[2])))
		},
	},
	{
		name: "socket_close", params: i32s(1), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.Close(u32(s[0])))
		},
	},
	{
		name: "create_message", params: i32s(2), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeU32(g.CreateMessage(u32(s[0]), u32(s[1])))
		},
	},
	{
		name: "message_size", params: i32s(1), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.MessageSize(u32(s[0])))
		},
	},
	{
		name: "message_data", params: i32s(3), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.MessageData(u32(s[0]), u32(s[1]), s32(s[2])))
		},
	},
	{
		name: "message_close", params: i32s(1), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.MessageClose(u32(s[0])))
		},
	},
	{
		name: "last_error", params: i32s(2), results: i32s(1),
		call: func(g *Guest, _ context.Context, s []uint64) {
			s[0] = api.EncodeI32(g.CopyLastError(u32(s[0]), u32(s[1])))
		},
	},
}

// Natives returns the names of the exported host functions in
// definition order.
func Natives() []string {
	names := make([]string, len(natives))
	for i, n := range natives {
		names[i] = n.name
	}
	return names
}
