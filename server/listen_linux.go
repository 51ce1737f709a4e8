// +build linux

package main

import (
	"github.com/pkg/errors"
	"github.com/xtaci/tcpraw"

	rudp "github.com/ms-s/rudp"
)

func listen(config *Config, rcfg *rudp.Config) (*rudp.Endpoint, error) {
	if config.TCP {
		conn, err := tcpraw.Listen("tcp", config.Listen)
		if err != nil {
			return nil, errors.Wrap(err, "tcpraw.Listen()")
		}
		return rudp.ServeConn(conn, rcfg)
	}
	return rudp.ListenWithOptions(config.Listen, rcfg)
}
