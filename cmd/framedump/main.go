// framedump decodes Ethernet frames captured over the device's serial
// console. The device logs frames as hex lines ("RX 0201ab..." /
// "TX ..."); framedump parses them, prints per-frame protocol
// summaries and traffic totals, and optionally rewrites the capture
// as a pcap file for Wireshark.
//
// Usage:
//
//	framedump [-pcap out.pcap] [-v] [capture.log]
//
// With no file argument the capture is read from stdin, so it can be
// piped straight off the serial monitor.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type frame struct {
	dir  string // "RX", "TX" or "??"
	data []byte
	line int
}

func main() {
	pcapOut := flag.String("pcap", "", "write decoded frames to a pcap file")
	verbose := flag.Bool("v", false, "print a summary line per frame")
	flag.Parse()

	input := os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "open: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	frames, skipped := parseCapture(input)
	if len(frames) == 0 {
		fmt.Fprintln(os.Stderr, "no frames found in input")
		os.Exit(1)
	}

	if *pcapOut != "" {
		err := writePcap(*pcapOut, frames)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pcap: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d frames to %s\n", len(frames), *pcapOut)
	}

	report(frames, skipped, *verbose)
}

// parseCapture extracts hex-encoded frames from the log. A frame line
// is any line whose last whitespace-separated field is an even-length
// hex string at least as long as an Ethernet header; everything else
// (driver logs, pcap prints, garbage from a resetting board) is
// skipped.
func parseCapture(f *os.File) (frames []frame, skipped int) {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024) // full-MTU hex lines
	lineNum := 0
	for sc.Scan() {
		lineNum++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		raw := fields[len(fields)-1]
		if len(raw) < 2*14 || len(raw)%2 != 0 {
			skipped++
			continue
		}
		data, err := hex.DecodeString(raw)
		if err != nil {
			skipped++
			continue
		}
		dir := "??"
		for _, f := range fields[:len(fields)-1] {
			switch strings.Trim(strings.ToUpper(f), ":") {
			case "RX", "TX":
				dir = strings.Trim(strings.ToUpper(f), ":")
			}
		}
		frames = append(frames, frame{dir: dir, data: data, line: lineNum})
	}
	return frames, skipped
}

func writePcap(path string, frames []frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := pcapgo.NewWriter(f)
	err = w.WriteFileHeader(65536, layers.LinkTypeEthernet)
	if err != nil {
		return err
	}
	// The serial log carries no timestamps; fake a steady 1ms spacing
	// so Wireshark keeps the frames ordered.
	base := time.Now()
	for i, fr := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(fr.data),
			Length:        len(fr.data),
		}
		err = w.WritePacket(ci, fr.data)
		if err != nil {
			return err
		}
	}
	return nil
}

func report(frames []frame, skipped int, verbose bool) {
	var rxBytes, txBytes uint64
	var rxCount, txCount int
	protos := map[string]int{}
	talkers := map[string]uint64{}

	for _, fr := range frames {
		pkt := gopacket.NewPacket(fr.data, layers.LayerTypeEthernet, gopacket.Default)
		switch fr.dir {
		case "RX":
			rxCount++
			rxBytes += uint64(len(fr.data))
		case "TX":
			txCount++
			txBytes += uint64(len(fr.data))
		}
		protos[topProtocol(pkt)]++
		if eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
			talkers[eth.SrcMAC.String()] += uint64(len(fr.data))
		}
		if verbose {
			fmt.Printf("%5d %-2s %4dB  %s\n", fr.line, fr.dir, len(fr.data), summarize(pkt))
		}
	}

	fmt.Println("=== Capture Summary ===")
	fmt.Printf("frames: %s total, %d RX (%s), %d TX (%s), %d lines skipped\n",
		humanize.Comma(int64(len(frames))),
		rxCount, humanize.Bytes(rxBytes),
		txCount, humanize.Bytes(txBytes), skipped)

	fmt.Println("\nby top-level protocol:")
	for _, kv := range sortedByCount(protos) {
		fmt.Printf("  %-12s %s\n", kv.k, humanize.Comma(int64(kv.v)))
	}

	fmt.Println("\ntop talkers by source MAC:")
	byBytes := map[string]int{}
	for mac, b := range talkers {
		byBytes[mac] = int(b)
	}
	limit := 0
	for _, kv := range sortedByCount(byBytes) {
		fmt.Printf("  %-18s %s\n", kv.k, humanize.Bytes(uint64(kv.v)))
		limit++
		if limit == 10 {
			break
		}
	}
}

// topProtocol names the most specific layer gopacket decoded.
func topProtocol(pkt gopacket.Packet) string {
	ls := pkt.Layers()
	for i := len(ls) - 1; i >= 0; i-- {
		t := ls[i].LayerType()
		if t == gopacket.LayerTypePayload || t == gopacket.LayerTypeDecodeFailure {
			continue
		}
		return t.String()
	}
	return "undecodable"
}

func summarize(pkt gopacket.Packet) string {
	var parts []string
	for _, l := range pkt.Layers() {
		if l.LayerType() == gopacket.LayerTypePayload {
			continue
		}
		parts = append(parts, l.LayerType().String())
	}
	s := strings.Join(parts, "/")
	if net := pkt.NetworkLayer(); net != nil {
		s += fmt.Sprintf(" %s > %s", net.NetworkFlow().Src(), net.NetworkFlow().Dst())
	}
	return s
}

type kv struct {
	k string
	v int
}

func sortedByCount(m map[string]int) []kv {
	out := make([]kv, 0, len(m))
	for k, v := range m {
		out = append(out, kv{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].v != out[j].v {
			return out[i].v > out[j].v
		}
		return out[i].k < out[j].k
	})
	return out
}
