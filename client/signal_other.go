// +build !linux,!darwin,!freebsd

package main

import (
	rudp "github.com/ms-s/rudp"
)

func watchSignals(e *rudp.Endpoint) {}
