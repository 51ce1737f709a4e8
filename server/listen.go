// +build !linux

package main

import (
	rudp "github.com/ms-s/rudp"
)

func listen(config *Config, rcfg *rudp.Config) (*rudp.Endpoint, error) {
	return rudp.ListenWithOptions(config.Listen, rcfg)
}
