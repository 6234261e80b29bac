package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func adminRequest(method, baseURL, path, token string, timeout time.Duration) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(token) == "" {
		fmt.Fprintln(os.Stderr, "missing -token")
		os.Exit(2)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))

	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "admin bearer token")
	_ = fs.Parse(args)

	adminRequest(http.MethodGet, *baseURL, "/v1/game", *token, 5*time.Second)
	adminRequest(http.MethodGet, *baseURL, "/v1/points", *token, 5*time.Second)
}

func tickCmd(args []string) {
	fs := flag.NewFlagSet("tick", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "admin bearer token")
	_ = fs.Parse(args)

	adminRequest(http.MethodPost, *baseURL, "/admin/v1/tick/run", *token, 30*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "admin bearer token")
	_ = fs.Parse(args)

	adminRequest(http.MethodPost, *baseURL, "/admin/v1/tick/snapshot", *token, 30*time.Second)
}

func gameStateCmd(state string, args []string) {
	fs := flag.NewFlagSet(state, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	token := fs.String("token", "", "admin bearer token")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/game/state"
	body := strings.NewReader(`{"state":"` + state + `"}`)
	req, err := http.NewRequest(http.MethodPost, u, body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*token) == "" {
		fmt.Fprintln(os.Stderr, "missing -token")
		os.Exit(2)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(*token))
	req.Header.Set("Content-Type", "application/json")

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
