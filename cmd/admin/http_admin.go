package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	getAndPrint(strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state")
}

func intentCmd(args []string) {
	fs := flag.NewFlagSet("intent", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	agentID := fs.String("agent", "", "agent handle, e.g. A12.1")
	_ = fs.Parse(args)

	if strings.TrimSpace(*agentID) == "" {
		fmt.Fprintln(os.Stderr, "missing -agent")
		os.Exit(2)
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/intent?agent=" + url.QueryEscape(strings.TrimSpace(*agentID))
	getAndPrint(u)
}

func getAndPrint(u string) {
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
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
