package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wppq/internal/api"
	"github.com/matheus3301/wppq/internal/client"
	"github.com/matheus3301/wppq/internal/config"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/session"
	"github.com/matheus3301/wppq/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	addrFlag := flag.String("addr", "", "daemon base URL when it listens on TCP")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "init-config" {
		cmdInitConfig()
		return
	}

	var c *client.Client
	if *addrFlag != "" {
		c = client.NewTCP(*addrFlag)
	} else {
		c = client.New(session.SocketPath(sessionName))
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	rest := args[1:]
	switch args[0] {
	case "status":
		st, err := c.Status(ctx)
		check(err)
		gw, err := c.Gateway(ctx)
		check(err)
		out.status(st, gw)
	case "window":
		fs := flag.NewFlagSet("window", flag.ExitOnError)
		override := fs.Bool("override", false, "evaluate with the override set")
		_ = fs.Parse(rest)
		w, err := c.Window(ctx, *override)
		check(err)
		out.window(w)
	case "enqueue":
		need(rest, 1, "enqueue <file.json>")
		items, err := readItems(rest[0])
		check(err)
		resp, err := c.Enqueue(ctx, items)
		check(err)
		out.enqueued(resp)
	case "start":
		fs := flag.NewFlagSet("start", flag.ExitOnError)
		override := fs.Bool("override", false, "ignore the allowed window")
		_ = fs.Parse(rest)
		st, err := c.Start(ctx, *override)
		check(err)
		out.status(st, nil)
	case "stop":
		st, err := c.Stop(ctx)
		check(err)
		out.status(st, nil)
	case "failed":
		st, err := c.Status(ctx)
		check(err)
		out.messages("failed", st.Failed)
	case "queue":
		st, err := c.Status(ctx)
		check(err)
		out.messages("queue", st.Queue)
	case "retry":
		id, rest := idFlag("retry", rest)
		need(rest, 1, "retry [--id msg] <index>")
		m, err := c.Retry(ctx, index(rest[0]), id)
		check(err)
		out.message("requeued", m)
	case "discard":
		id, rest := idFlag("discard", rest)
		need(rest, 1, "discard [--id msg] <index>")
		m, err := c.Remove(ctx, client.ListFailed, index(rest[0]), id)
		check(err)
		out.message("discarded", m)
	case "remove":
		id, rest := idFlag("remove", rest)
		need(rest, 1, "remove [--id msg] <index>")
		m, err := c.Remove(ctx, client.ListQueue, index(rest[0]), id)
		check(err)
		out.message("removed", m)
	case "edit":
		id, rest := idFlag("edit", rest)
		need(rest, 3, "edit [--id msg] <queue|failed> <index> <body>")
		list := rest[0]
		if list != client.ListQueue && list != client.ListFailed {
			fatal(fmt.Errorf("unknown list %q", list))
		}
		check(c.Edit(ctx, list, index(rest[1]), id, strings.Join(rest[2:], " ")))
		fmt.Println("updated")
	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		limit := fs.Int("limit", 20, "entries to show")
		offset := fs.Int("offset", 0, "entries to skip")
		_ = fs.Parse(rest)
		h, err := c.History(ctx, *limit, *offset)
		check(err)
		out.history(h)
	case "qr":
		need(rest, 1, "qr <out.png>")
		png, err := c.GatewayQR(ctx)
		check(err)
		check(os.WriteFile(rest[0], png, 0600))
		fmt.Printf("pairing code written to %s\n", rest[0])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wppqctl [--session <name>] [--json] [--addr <url>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show dispatch and gateway status")
	fmt.Fprintln(os.Stderr, "  window [--override]            Check the allowed sending window")
	fmt.Fprintln(os.Stderr, "  enqueue <file.json>            Queue messages ([{recipient,template,values}])")
	fmt.Fprintln(os.Stderr, "  start [--override]             Start sending")
	fmt.Fprintln(os.Stderr, "  stop                           Stop sending")
	fmt.Fprintln(os.Stderr, "  queue                          List pending messages")
	fmt.Fprintln(os.Stderr, "  failed                         List failed messages")
	fmt.Fprintln(os.Stderr, "  retry <i>                      Requeue failed message i")
	fmt.Fprintln(os.Stderr, "  discard <i>                    Drop failed message i")
	fmt.Fprintln(os.Stderr, "  remove <i>                     Drop pending message i")
	fmt.Fprintln(os.Stderr, "  edit <queue|failed> <i> <body> Replace a message body")
	fmt.Fprintln(os.Stderr, "  history [--limit n]            Show the send log")
	fmt.Fprintln(os.Stderr, "  qr <out.png>                   Save the pending pairing QR code")
	fmt.Fprintln(os.Stderr, "  init-config                    Write a default config file")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "retry, discard, remove and edit accept --id <msg> so the call follows the")
	fmt.Fprintln(os.Stderr, "message if the list shifted, and fails if it has already left the list.")
}

func cmdInitConfig() {
	path := session.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fatal(fmt.Errorf("%s already exists", path))
	}
	check(config.Save(path, config.Default()))
	fmt.Printf("wrote %s\n", path)
}

// readItems accepts either a bare array or {"items": [...]}.
func readItems(path string) ([]api.EnqueueItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []api.EnqueueItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var req api.EnqueueRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return req.Items, nil
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: wppqctl %s\n", usage)
		os.Exit(1)
	}
}

// idFlag parses the --id guard shared by the positional commands.
func idFlag(name string, args []string) (string, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	id := fs.String("id", "", "message id the index refers to")
	_ = fs.Parse(args)
	return *id, fs.Args()
}

func index(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		fatal(fmt.Errorf("invalid index %q", s))
	}
	return n
}

func check(err error) {
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && len(apiErr.Details) > 0 {
		fmt.Fprintf(os.Stderr, "error: %s\n%s\n", apiErr.Message, apiErr.Details)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

type printer struct {
	json bool
}

func (p printer) outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func (p printer) status(st *api.DispatchStatus, gw *api.GatewayResponse) {
	if p.json {
		p.outputJSON(map[string]any{"dispatch": st, "gateway": gw})
		return
	}
	if gw != nil {
		fmt.Printf("Gateway:  %s (%s)", gw.State, gw.Kind)
		if gw.Reason != "" {
			fmt.Printf(" - %s", gw.Reason)
		}
		fmt.Println()
	}
	fmt.Printf("Sending:  %v\n", st.Sending)
	fmt.Printf("Progress: %.0f%% of %d\n", st.Progress, st.TotalMessages)
	fmt.Printf("Queued:   %d\n", len(st.Queue))
	fmt.Printf("Failed:   %d\n", len(st.Failed))
	if st.DailyRemaining < 0 {
		fmt.Printf("Today:    %d sent (no cap)\n", st.DailyCount)
	} else {
		fmt.Printf("Today:    %d/%d sent\n", st.DailyCount, st.DailyLimit)
	}
	fmt.Printf("Window:   %s\n", openClosed(st.WindowOpen))
}

func openClosed(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func (p printer) window(w *api.WindowResponse) {
	if p.json {
		p.outputJSON(w)
		return
	}
	fmt.Printf("%s at %s (%s)\n", openClosed(w.Allowed), w.Now.Format("Mon 15:04"), w.Timezone)
}

func (p printer) enqueued(r *api.EnqueueResponse) {
	if p.json {
		p.outputJSON(r)
		return
	}
	fmt.Printf("enqueued %d, %d now queued\n", len(r.Enqueued), r.Queued)
	for _, u := range r.Unresolved {
		fmt.Printf("  item %d: unresolved %s\n", u.Index, strings.Join(u.Tokens, ", "))
	}
}

func (p printer) messages(list string, msgs []dispatch.Message) {
	if p.json {
		p.outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Printf("%s is empty\n", list)
		return
	}
	for i, m := range msgs {
		fmt.Printf("%3d  %-15s %s", i, m.Recipient, oneLine(m.Body, 50))
		if m.FailureReason != "" {
			fmt.Printf("  [%s]", m.FailureReason)
		}
		fmt.Println()
	}
}

func (p printer) message(verb string, m *dispatch.Message) {
	if p.json {
		p.outputJSON(m)
		return
	}
	fmt.Printf("%s %s -> %s\n", verb, m.ID, m.Recipient)
}

func (p printer) history(h *api.HistoryResponse) {
	if p.json {
		p.outputJSON(h)
		return
	}
	fmt.Printf("today: %d sent, %d failed\n", h.SentToday, h.FailedToday)
	for _, e := range h.Entries {
		ts := time.UnixMilli(e.CreatedAt).Format("2006-01-02 15:04")
		detail := e.DeliveryID
		if e.Status != store.SendSent {
			detail = e.Error
		}
		fmt.Printf("%s  %-6s %-15s %s\n", ts, e.Status, e.Recipient, detail)
	}
}

func oneLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
