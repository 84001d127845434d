package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"

	"botcraft.ai/internal/observerproto"
)

type client struct {
	baseURL string
	http    *http.Client
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "server base URL (admin HTTP must be enabled)")
	every := flag.Int("every", 1, "receive one TICK per N ticks")
	watchFlag := flag.String("watch", "", "comma separated agent handles whose intents to show")
	flag.Parse()

	watch, err := parseWatch(*watchFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -watch: %v\n", err)
		os.Exit(2)
	}

	c := &client{
		baseURL: strings.TrimRight(*addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	boot, err := c.bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Every:           *every,
		Watch:           watch,
	}
	conn, err := c.subscribe(sub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// The server drops readers that stay silent for a minute; re-sending
	// SUBSCRIBE keeps the session alive without changing it.
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for range t.C {
			if err := conn.WriteJSON(sub); err != nil {
				return
			}
		}
	}()

	app := tview.NewApplication()
	ticksTable := tview.NewTable().SetBorders(false).SetFixed(1, 0)
	ticksTable.SetTitle("Ticks").SetBorder(true)

	dropsView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	dropsView.SetTitle("Drops").SetBorder(true)

	intentsView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	intentsView.SetTitle("Watched intents").SetBorder(true)

	tiers := make([]string, 0, len(boot.Tiers))
	for _, t := range boot.Tiers {
		tiers = append(tiers, fmt.Sprintf("%s=%d", t.Name, t.Priority))
	}
	headerView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	headerView.SetBorder(true).SetTitle("World")
	headerView.SetText(fmt.Sprintf("%s @ %dHz | tiers: %s | F10 quit",
		boot.WorldID, boot.TickRateHz, strings.Join(tiers, " ")))

	statusView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(dropsView, 0, 1, false).
		AddItem(intentsView, 0, 1, false)
	mainLayout := tview.NewFlex().
		AddItem(ticksTable, 0, 2, true).
		AddItem(right, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(headerView, 3, 0, false).
		AddItem(mainLayout, 0, 1, true).
		AddItem(statusView, 3, 0, false)

	m := newModel(watch)
	render := func() {
		renderTicksTable(ticksTable, m.rows())
		dropsView.SetText(m.renderDrops())
		intentsView.SetText(m.renderIntents())
		statusView.SetText(m.renderStatus())
	}
	render()

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				app.QueueUpdateDraw(func() {
					statusView.SetText(fmt.Sprintf("[red]stream closed: %v[-]", err))
				})
				return
			}
			var msg observerproto.TickMsg
			if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != observerproto.TypeTick {
				continue
			}
			// The model is only touched on the UI goroutine.
			app.QueueUpdateDraw(func() {
				m.add(msg)
				render()
			})
		}
	}()

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyF10 || event.Key() == tcell.KeyCtrlC {
			app.Stop()
			return nil
		}
		return event
	})

	if err := app.SetRoot(root, true).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func (c *client) bootstrap() (observerproto.BootstrapResponse, error) {
	var out observerproto.BootstrapResponse
	resp, err := c.http.Get(c.baseURL + "/admin/v1/observer/bootstrap")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return out, fmt.Errorf("bootstrap: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("bootstrap decode: %w", err)
	}
	return out, nil
}

func (c *client) subscribe(sub observerproto.SubscribeMsg) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + "/admin/v1/observer/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func renderTicksTable(table *tview.Table, rows [][]string) {
	table.Clear()
	headers := []string{"Tick", "Agents", "Drained", "Applied", "Dropped", "Stalled", "ms"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for r, row := range rows {
		for col, v := range row {
			cell := tview.NewTableCell(v).SetAlign(tview.AlignRight)
			if col == 4 && v != "0" {
				cell.SetTextColor(tcell.ColorYellow)
			}
			table.SetCell(r+1, col, cell)
		}
	}
}
