// The MIT License (MIT)
//
// Copyright (c) 2023 ms-s
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"bufio"
	"log"
	"net"
	"os"
	"time"

	"github.com/urfave/cli"

	rudp "github.com/ms-s/rudp"
	"github.com/ms-s/rudp/std"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		// add more log flags for debugging
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "rudp-client"
	myApp.Usage = "sends stdin lines as reliable datagrams"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "localaddr,l",
			Value: ":0",
			Usage: "local bind address",
		},
		cli.StringFlag{
			Name:  "remoteaddr, r",
			Value: "127.0.0.1:29900",
			Usage: "rudp server address",
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "it's a secrect",
			Usage:  "pre-shared secret between client and server",
			EnvVar: "RUDP_KEY",
		},
		cli.StringFlag{
			Name:  "crypt",
			Value: "aes",
			Usage: "payload encryption: aes, none",
		},
		cli.BoolFlag{
			Name:  "nocomp",
			Usage: "disable payload compression",
		},
		cli.IntFlag{
			Name:  "pktsize",
			Value: rudp.DefaultMaxPacketSize,
			Usage: "maximum payload per datagram in bytes",
		},
		cli.IntFlag{
			Name:  "window",
			Value: rudp.DefaultWindow,
			Usage: "sliding window size in packets",
		},
		cli.IntFlag{
			Name:  "timeout",
			Value: 2000,
			Usage: "retransmission timeout in milliseconds",
		},
		cli.IntFlag{
			Name:  "maxretrans",
			Value: rudp.DefaultMaxRetrans,
			Usage: "retransmissions of one packet before giving up on the peer",
		},
		cli.StringFlag{
			Name:  "snmplog",
			Value: "",
			Usage: "collect snmp to file, aware of timeformat in golang, like: ./snmp-20060102.log",
		},
		cli.IntFlag{
			Name:  "snmpperiod",
			Value: 60,
			Usage: "snmp collect period, in seconds",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "to suppress the per-packet trace messages",
		},
		cli.BoolFlag{
			Name:  "tcp",
			Usage: "to emulate a TCP connection(linux)",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "", // when the value is not empty, the config path must exists
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.LocalAddr = c.String("localaddr")
		config.RemoteAddr = c.String("remoteaddr")
		config.Key = c.String("key")
		config.Crypt = c.String("crypt")
		config.NoComp = c.Bool("nocomp")
		config.PktSize = c.Int("pktsize")
		config.Window = c.Int("window")
		config.Timeout = c.Int("timeout")
		config.MaxRetrans = c.Int("maxretrans")
		config.SnmpLog = c.String("snmplog")
		config.SnmpPeriod = c.Int("snmpperiod")
		config.Log = c.String("log")
		config.Quiet = c.Bool("quiet")
		config.TCP = c.Bool("tcp")

		if c.String("c") != "" {
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		// log redirect
		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.Println("version:", VERSION)
		log.Println("remote address:", config.RemoteAddr)
		log.Println("encryption:", config.Crypt)
		log.Println("compression:", !config.NoComp)
		log.Println("pktsize:", config.PktSize)
		log.Println("window:", config.Window)
		log.Println("timeout:", config.Timeout, "ms")
		log.Println("maxretrans:", config.MaxRetrans)
		log.Println("snmplog:", config.SnmpLog)
		log.Println("snmpperiod:", config.SnmpPeriod)
		log.Println("quiet:", config.Quiet)
		log.Println("tcp:", config.TCP)

		var sealer *std.Sealer
		if config.Crypt != "none" {
			var err error
			sealer, err = std.NewSealer(config.Key)
			checkError(err)
		}
		pipeline := std.NewPipeline(!config.NoComp, sealer, config.PktSize)

		rcfg := rudp.DefaultConfig()
		rcfg.MaxPacketSize = config.PktSize
		rcfg.Window = config.Window
		rcfg.Timeout = time.Duration(config.Timeout) * time.Millisecond
		rcfg.MaxRetrans = config.MaxRetrans
		if !config.Quiet {
			rcfg.Tracer = func(tr rudp.Trace) { log.Println(tr) }
		}

		conn, raddr, err := dial(&config)
		checkError(err)
		e, err := rudp.ServeConn(conn, rcfg)
		checkError(err)
		log.Println("local address:", e.LocalAddr())
		watchSignals(e)

		done := make(chan struct{})
		e.SetEventHandler(func(_ *rudp.Endpoint, ev rudp.Event, peer net.Addr) {
			switch ev {
			case rudp.EventTimeout:
				log.Fatalln("peer timed out:", peer)
			case rudp.EventClosed:
				close(done)
			}
		})

		go std.SnmpLogger(config.SnmpLog, config.SnmpPeriod)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			payload, err := pipeline.Encode(scanner.Bytes())
			if err != nil {
				log.Println("encode:", err)
				continue
			}
			checkError(e.SendTo(payload, raddr))
		}
		checkError(scanner.Err())

		// flush in-flight datagrams and exchange FINs before exiting
		checkError(e.Close())
		<-done
		return conn.Close()
	}
	myApp.Run(os.Args)
}

func dialUDP(config *Config) (net.PacketConn, net.Addr, error) {
	raddr, err := net.ResolveUDPAddr("udp", config.RemoteAddr)
	if err != nil {
		return nil, nil, err
	}
	laddr, err := net.ResolveUDPAddr("udp", config.LocalAddr)
	if err != nil {
		return nil, nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, nil, err
	}
	return conn, raddr, nil
}

func checkError(err error) {
	if err != nil {
		log.Fatalf("%+v", err)
	}
}
