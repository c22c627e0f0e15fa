// Package builtin holds the catalogue of protocol clients compiled into apiprobe.
package builtin

import (
	"apiprobe/internal/protocol"
	"apiprobe/internal/protocol/grpc"
	"apiprobe/internal/protocol/mcp"
	"apiprobe/internal/protocol/rest"
)

// Catalogue returns the descriptors of every built-in protocol client.
func Catalogue() []protocol.Descriptor {
	return []protocol.Descriptor{
		rest.Descriptor(),
		mcp.Descriptor(),
		grpc.Descriptor(),
	}
}
