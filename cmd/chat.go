package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/canvasagent/internal/bus"
	"github.com/crystaldolphin/canvasagent/internal/dependency"
	"github.com/crystaldolphin/canvasagent/internal/media"
	"github.com/crystaldolphin/canvasagent/internal/shared/cmdutils"
	"github.com/crystaldolphin/canvasagent/internal/studio"
)

var (
	chatMessage string
	chatSession string
	chatLogs    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the studio agent from the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "cli", "Session ID")
	chatCmd.Flags().BoolVar(&chatLogs, "logs", false, "Show plan progress events")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

const turnTimeout = 10 * time.Minute

// chatState carries the canvas between turns: the last produced item is the
// image the next request edits.
type chatState struct {
	svc     *studio.Service
	session string
	last    *media.Item
}

func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := dependency.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	if chatLogs {
		events, unsubscribe := container.Events().Subscribe(chatSession)
		defer unsubscribe()
		go printEvents(events)
	}

	st := &chatState{svc: container.Studio(), session: chatSession}
	if items, err := st.svc.Gallery(ctx, chatSession); err == nil && len(items) > 0 {
		last := items[len(items)-1]
		st.last = &last
	}
	if chatMessage != "" {
		fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
		return st.turn(ctx, chatMessage)
	}
	return st.interactive(ctx)
}

func (st *chatState) interactive(ctx context.Context) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit, '/new' to start over)\n\n", logo)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("You: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println("\nGoodbye!")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}
		if line == "/new" {
			st.last = nil
			fmt.Println("  ↳ canvas cleared")
			continue
		}
		if err := st.turn(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ %s [%s]\n", studio.UserMessage(err), studio.Classify(err))
		}
	}
}

// turn sends one message, threading the last produced item as the image
// under edit.
func (st *chatState) turn(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	req := studio.ChatRequest{SessionID: st.session, Message: message}
	if st.last != nil {
		ref := st.last.Reference()
		req.PreviewImageURL = ref.ThreadURL()
		req.StructuredPrompt = ref.StructuredPrompt
	}

	resp, err := st.svc.Chat(ctx, req)
	if err != nil {
		return err
	}
	st.session = resp.SessionID

	cmdutils.PrintResponse(logo, resp.Message)
	for _, item := range resp.Gallery {
		fmt.Printf("  %s %s (%s)\n", item.Type, cmdutils.Elide(item.URL, 96), item.Tool)
	}
	if len(resp.ParameterUpdates) > 0 {
		fmt.Printf("  parameters: %v\n", resp.ParameterUpdates)
	}
	if n := len(resp.Gallery); n > 0 {
		item := resp.Gallery[n-1]
		st.last = &item
	}
	return nil
}

func printEvents(events <-chan bus.Event) {
	for e := range events {
		switch e.Kind {
		case bus.KindUnitStarted:
			fmt.Printf("  ↳ step %d/%d: %s\n", e.Current, e.Total, e.Tool)
		case bus.KindUnitFailed:
			fmt.Printf("  ↳ step %d/%d failed: %s\n", e.Current, e.Total, e.Message)
		default:
			fmt.Printf("  ↳ %s\n", e.Preview())
		}
	}
}
