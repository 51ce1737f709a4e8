// +build linux

package main

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/tcpraw"
)

func dial(config *Config) (net.PacketConn, net.Addr, error) {
	if config.TCP {
		conn, err := tcpraw.Dial("tcp", config.RemoteAddr)
		if err != nil {
			return nil, nil, errors.Wrap(err, "tcpraw.Dial()")
		}
		raddr, err := net.ResolveTCPAddr("tcp", config.RemoteAddr)
		if err != nil {
			return nil, nil, errors.WithStack(err)
		}
		return conn, raddr, nil
	}
	return dialUDP(config)
}
