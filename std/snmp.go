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

package std

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	rudp "github.com/ms-s/rudp"
)

// deltaHeader names the per-interval columns appended after the
// cumulative counters. The retransmission ratio of an interval is the
// first thing to look at when a link degrades.
var deltaHeader = []string{"DeltaOutPkts", "DeltaInPkts", "DeltaRetrans", "RetransRatio"}

// SnmpLogger appends one CSV row per interval: the cumulative
// transport counters plus the deltas accumulated since the previous
// row. The filename part of path may carry a go time format for
// rotation.
func SnmpLogger(path string, interval int) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	prev := rudp.DefaultSnmp.Copy()
	for range ticker.C {
		cur := rudp.DefaultSnmp.Copy()
		if err := appendStats(path, time.Now(), cur, prev); err != nil {
			log.Println("snmp:", err)
			return
		}
		prev = cur
	}
}

// appendStats writes one statistics row, creating the file and its
// header on first use.
func appendStats(path string, now time.Time, cur, prev *rudp.Snmp) error {
	logdir, logfile := filepath.Split(path)
	f, err := os.OpenFile(filepath.Join(logdir, now.Format(logfile)), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		header := append([]string{"Unix"}, cur.Header()...)
		if err := w.Write(append(header, deltaHeader...)); err != nil {
			return err
		}
	}

	dOut := cur.OutPkts - prev.OutPkts
	dIn := cur.InPkts - prev.InPkts
	dRetrans := cur.RetransSegs - prev.RetransSegs
	ratio := 0.0
	if dOut > 0 {
		ratio = float64(dRetrans) / float64(dOut)
	}

	row := append([]string{fmt.Sprint(now.Unix())}, cur.ToSlice()...)
	row = append(row,
		strconv.FormatUint(dOut, 10),
		strconv.FormatUint(dIn, 10),
		strconv.FormatUint(dRetrans, 10),
		strconv.FormatFloat(ratio, 'f', 4, 64))
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
