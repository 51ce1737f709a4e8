// +build !linux

package main

import (
	"net"
)

func dial(config *Config) (net.PacketConn, net.Addr, error) {
	return dialUDP(config)
}
