package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/dhd-bridge/dhd-go/pkg/action"
	"github.com/dhd-bridge/dhd-go/pkg/client"
	"github.com/dhd-bridge/dhd-go/pkg/discovery"
	"github.com/dhd-bridge/dhd-go/pkg/path"
)

// Console is the interactive command interface.
type Console struct {
	rl  *readline.Instance
	out io.Writer

	client           *client.Client
	actions          *action.Instances
	browser          *discovery.Browser
	discoveryTimeout time.Duration

	mu      sync.Mutex
	watches map[string]*client.Subscriber
}

func newReadline() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dhd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the console should
// exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "get", "g":
		c.cmdGet(args)
	case "set", "s":
		c.cmdSet(args)
	case "watch", "w":
		c.cmdWatch(args)
	case "unwatch":
		c.cmdUnwatch(args)
	case "paths", "ls":
		c.cmdPaths()
	case "status":
		c.cmdStatus()
	case "auth":
		c.cmdAuth(args)
	case "discover":
		c.cmdDiscover(ctx)
	case "actions":
		c.cmdActions()
	case "press":
		c.cmdPress(args)
	case "turn":
		c.cmdTurn(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Bridge Commands:
  Device:
    get <path>              - Read a value once
    set <path> <value>      - Write a value (JSON, or a bare string)
    watch <path>            - Print every change of a path
    unwatch <path>          - Stop printing a path
    paths                   - List tracked paths

  Connection:
    status                  - Show connection status
    auth <token> [address]  - Change credentials and reconnect
    discover                - Browse for devices

  Actions:
    actions                 - List bound actions
    press <context>         - Press an action key
    turn <context> <ticks>  - Rotate a dial action

  General:
    help                    - Show this help
    quit                    - Exit`)
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: get <path>")
		return
	}
	p := args[0]

	// One-shot handle: registering asks the device for the current value.
	var sub *client.Subscriber
	var once sync.Once
	sub = client.NewSubscriber(p, func(value any) {
		once.Do(func() {
			fmt.Fprintf(c.out, "%s = %s\n", sub.Path(), formatValue(value))
			c.client.Unregister(sub.Path(), sub)
		})
	})
	if err := c.client.Register(p, sub); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: set <path> <value>")
		return
	}
	value := parseValue(strings.Join(args[1:], " "))
	if err := c.client.RequestSet(args[0], value); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Sent %s = %s\n", path.Normalize(args[0]), formatValue(value))
}

func (c *Console) cmdWatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: watch <path>")
		return
	}
	p := path.Normalize(args[0])

	c.mu.Lock()
	if c.watches == nil {
		c.watches = make(map[string]*client.Subscriber)
	}
	if _, ok := c.watches[p]; ok {
		c.mu.Unlock()
		fmt.Fprintf(c.out, "Already watching %s\n", p)
		return
	}
	sub := client.NewSubscriber(p, func(value any) {
		fmt.Fprintf(c.out, "[watch] %s = %s\n", p, formatValue(value))
	})
	c.watches[p] = sub
	c.mu.Unlock()

	if err := c.client.Register(p, sub); err != nil {
		c.mu.Lock()
		delete(c.watches, p)
		c.mu.Unlock()
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Watching %s\n", p)
}

func (c *Console) cmdUnwatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: unwatch <path>")
		return
	}
	p := path.Normalize(args[0])

	c.mu.Lock()
	sub, ok := c.watches[p]
	delete(c.watches, p)
	c.mu.Unlock()

	if !ok {
		fmt.Fprintf(c.out, "Not watching %s\n", p)
		return
	}
	c.client.Unregister(p, sub)
	fmt.Fprintf(c.out, "Stopped watching %s\n", p)
}

func (c *Console) cmdPaths() {
	paths := c.client.Paths()
	if len(paths) == 0 {
		fmt.Fprintln(c.out, "No tracked paths")
		return
	}
	fmt.Fprintf(c.out, "Tracked paths (%d):\n", len(paths))
	for _, p := range paths {
		fmt.Fprintf(c.out, "  %-40s %d handle(s)\n", p, len(c.client.Handles(p)))
	}
}

func (c *Console) cmdStatus() {
	s := c.client.Status()
	fmt.Fprintln(c.out, "Bridge Status:")
	fmt.Fprintf(c.out, "  State:        %s\n", s.State)
	fmt.Fprintf(c.out, "  Address:      %s\n", s.Address)
	fmt.Fprintf(c.out, "  Connection:   %s\n", s.ConnectionID)
	fmt.Fprintf(c.out, "  Reconnecting: %v\n", s.ReconnectPending)
	fmt.Fprintf(c.out, "  Replaying:    %v\n", s.ReplayPending)
	fmt.Fprintf(c.out, "  Paths:        %d\n", s.Paths)
	fmt.Fprintf(c.out, "  Handles:      %d\n", s.Handles)
	fmt.Fprintf(c.out, "  Heartbeats:   %d sent, %d acked, %d outstanding\n", s.Heartbeat.Sent, s.Heartbeat.Acked, s.Heartbeat.Outstanding)
	fmt.Fprintf(c.out, "  Deliveries:   %d\n", s.Router.Deliveries)
	fmt.Fprintf(c.out, "  Decode errors: %d\n", s.DecodeErrors)
	if c.actions != nil {
		fmt.Fprintf(c.out, "  Actions:      %d\n", c.actions.Len())
	}
}

func (c *Console) cmdAuth(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.out, "Usage: auth <token> [address]")
		return
	}
	address := c.client.Status().Address
	if len(args) == 2 {
		address = args[1]
	}
	if err := c.client.UpdateCredentials(address, args[0]); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Credentials updated for %s\n", address)
}

func (c *Console) cmdDiscover(ctx context.Context) {
	if c.browser == nil {
		fmt.Fprintln(c.out, "Discovery not available")
		return
	}
	fmt.Fprintln(c.out, "Browsing for devices...")

	timeout := c.discoveryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	devices, err := c.browser.FindAll(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Discovery error: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "No devices found")
		return
	}
	fmt.Fprintf(c.out, "Found %d device(s):\n", len(devices))
	for i, d := range devices {
		fmt.Fprintf(c.out, "  %d. %s (%s)\n", i+1, d.Instance, d.Address())
	}
}

func (c *Console) cmdActions() {
	if c.actions == nil || c.actions.Len() == 0 {
		fmt.Fprintln(c.out, "No actions bound")
		return
	}
	for _, ctx := range c.actions.Contexts() {
		inst, ok := c.actions.Get(ctx)
		if !ok {
			continue
		}
		fmt.Fprintf(c.out, "  %-16s %-6s %s\n", ctx, inst.Type(), inst.Path())
	}
}

func (c *Console) cmdPress(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: press <context>")
		return
	}
	c.dispatch(action.KeyUp{Context: args[0]})
}

func (c *Console) cmdTurn(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: turn <context> <ticks>")
		return
	}
	ticks, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid ticks: %s\n", args[1])
		return
	}
	c.dispatch(action.DialRotate{Context: args[0], Ticks: ticks})
}

func (c *Console) dispatch(ev action.Event) {
	if c.actions == nil {
		fmt.Fprintln(c.out, "No actions bound")
		return
	}
	if _, ok := c.actions.Get(ev.EventContext()); !ok {
		fmt.Fprintf(c.out, "Unknown action: %s\n", ev.EventContext())
		return
	}
	if err := c.actions.Dispatch(ev); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

// parseValue reads s as JSON, falling back to the bare string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
