// +build linux darwin freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	rudp "github.com/ms-s/rudp"
)

// watchSignals dumps a one-line health summary of the endpoint on
// SIGUSR1: the session count alongside the transport counters that
// tell congestion from peer loss.
func watchSignals(e *rudp.Endpoint) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		for range ch {
			snmp := rudp.DefaultSnmp.Copy()
			log.Printf("endpoint %v: sessions=%d out=%d in=%d retrans=%d acksignored=%d timeouts=%d",
				e.LocalAddr(), e.NumSessions(),
				snmp.OutPkts, snmp.InPkts, snmp.RetransSegs, snmp.AcksIgnored, snmp.TimeoutEvents)
		}
	}()
}
