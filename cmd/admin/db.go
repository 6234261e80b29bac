package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"turfpoint.gg/internal/store"
)

// seedCmd populates a fresh database. Users are name:token:faction-index
// with an optional :admin suffix, e.g. "ada:tok-ada:0" or "ops:tok-ops:0:admin".
func seedCmd(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	dbPath := fs.String("db", "./data/game.db", "sqlite db path")
	factions := fs.String("factions", "", "comma-separated faction names (required)")
	points := fs.String("points", "", "comma-separated point names (required)")
	users := fs.String("users", "", "comma-separated user specs (required)")
	actionPoints := fs.Int("action_points", 0, "starting action points per user")
	maxHealth := fs.Int("max_health", 0, "initial point max health (0 = default)")
	_ = fs.Parse(args)

	data := store.SeedData{
		Factions:  splitList(*factions),
		Points:    splitList(*points),
		MaxHealth: *maxHealth,
	}
	if len(data.Factions) == 0 || len(data.Points) == 0 {
		fmt.Fprintln(os.Stderr, "missing -factions or -points")
		os.Exit(2)
	}
	for _, spec := range splitList(*users) {
		su, err := parseUserSpec(spec, len(data.Factions))
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad user spec %q: %v\n", spec, err)
			os.Exit(2)
		}
		su.ActionPoints = *actionPoints
		data.Users = append(data.Users, su)
	}
	if len(data.Users) == 0 {
		fmt.Fprintln(os.Stderr, "missing -users")
		os.Exit(2)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Seed(context.Background(), data); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d factions, %d points, %d users into %s\n",
		len(data.Factions), len(data.Points), len(data.Users), *dbPath)
}

func parseUserSpec(spec string, factions int) (store.SeedUser, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return store.SeedUser{}, fmt.Errorf("expected name:token:faction[:admin]")
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil || idx < 0 || idx >= factions {
		return store.SeedUser{}, fmt.Errorf("faction index out of range")
	}
	su := store.SeedUser{Name: parts[0], Token: parts[1], Faction: idx}
	if len(parts) == 4 {
		if parts[3] != store.RoleAdmin {
			return store.SeedUser{}, fmt.Errorf("unknown role %q", parts[3])
		}
		su.Role = store.RoleAdmin
	}
	return su, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// archiveCmd prints the archived point rows for one tick as JSON lines.
func archiveCmd(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	dbPath := fs.String("db", "./data/game.db", "sqlite db path")
	tick := fs.Uint64("tick", 0, "archived tick to print")
	_ = fs.Parse(args)

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer st.Close()

	var rows []store.ArchiveRow
	err = st.Tx(context.Background(), func(tx *store.Tx) error {
		var err error
		rows, err = tx.ArchiveRows(*tick)
		return err
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "no archive rows for tick %d\n", *tick)
		os.Exit(2)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}
