// Command admin operates on a turfpoint deployment: local database seeding
// and archive queries, privileged HTTP calls against a running server, and
// offline readers for the compressed tick/audit logs.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "seed":
			seedCmd(os.Args[2:])
			return
		case "archive":
			archiveCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "tick":
			tickCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "pause":
			gameStateCmd("paused", os.Args[2:])
			return
		case "resume":
			gameStateCmd("playing", os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		}
	}
	usage()
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  seed      populate a fresh database with factions, points and users
  archive   print archived point rows for a tick
  state     print game state and the point listing from a running server
  tick      run one tick on a running server
  snapshot  archive the current tick without advancing it
  pause     pause tick processing
  resume    resume tick processing
  log       decode a compressed tick or audit log directory`)
	os.Exit(2)
}

// logCmd streams JSONL entries out of hour-rotated zstd segments, oldest
// first, one JSON object per line.
func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "ticks", "log kind: ticks | audit")
	_ = fs.Parse(args)

	if *kind != "ticks" && *kind != "audit" {
		fmt.Fprintln(os.Stderr, "bad -kind: want ticks or audit")
		os.Exit(2)
	}
	dir := filepath.Join(*dataDir, *kind)
	ents, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, *kind+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for _, name := range names {
		if err := dumpSegment(filepath.Join(dir, name), out); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
	}
}

func dumpSegment(path string, out *bufio.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		// Round-trip to reject truncated tails early.
		var v json.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		_, _ = out.Write(sc.Bytes())
		_ = out.WriteByte('\n')
	}
	return sc.Err()
}
