package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Rituearth/SADDIE-2.0/internal/agent"
	"github.com/Rituearth/SADDIE-2.0/internal/config"
	"github.com/Rituearth/SADDIE-2.0/internal/listen"
	"github.com/Rituearth/SADDIE-2.0/internal/llm"
	"github.com/Rituearth/SADDIE-2.0/internal/menu"
	"github.com/Rituearth/SADDIE-2.0/internal/order"
	"github.com/Rituearth/SADDIE-2.0/internal/tts"
	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Order by typing in the terminal",
		Long:  "Runs one conversation against stdin. Replies are printed instead of spoken. Type /stop to interrupt Saddie and /quit to leave.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(true)
			if err != nil {
				return err
			}
			return chat(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}
}

func chat(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	if err := cfg.Validate(false); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := sessionConfig(cfg)
	sc.Listen.Continuous = false
	sc.GreetingDelay = 0

	orders, err := orderSink(cfg)
	if err != nil {
		return err
	}
	session := agent.NewSession(
		sc,
		llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID, menu.PersonaPrompt(menu.Default())),
		tts.NewConsoleSpeaker(out, "Saddie: "),
		typedOnly{},
		&consoleObserver{out: out},
		orders,
	)

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return <-done
		case line, ok := <-lines:
			if !ok {
				stop()
				return <-done
			}
			switch strings.TrimSpace(line) {
			case "/quit", "/exit":
				stop()
				return <-done
			case "/stop":
				session.Stop()
			default:
				session.SubmitText(line)
			}
		}
	}
}

// typedOnly is the terminal's recognizer: there is no microphone.
type typedOnly struct{}

func (typedOnly) Open(listen.Options, chan<- listen.Event) (listen.Session, error) {
	return nil, listen.ErrUnsupported
}

// consoleObserver prints order changes and errors. Replies reach the terminal through the speaker.
type consoleObserver struct {
	out       io.Writer
	lastOrder string
}

func (o *consoleObserver) OnMessage(agent.ChatMessage)     {}
func (o *consoleObserver) OnMessageAppend(string, string)  {}
func (o *consoleObserver) OnMessageReplace(string, string) {}
func (o *consoleObserver) OnStatus(agent.Status)           {}

func (o *consoleObserver) OnError(message string) {
	if message != "" {
		fmt.Fprintf(o.out, "! %s\n", message)
	}
}

func (o *consoleObserver) OnOrder(snap order.Snapshot, profile order.Profile) {
	summary := orderSummary(snap, profile)
	if summary == o.lastOrder {
		return
	}
	o.lastOrder = summary
	fmt.Fprint(o.out, summary)
}

func orderSummary(snap order.Snapshot, profile order.Profile) string {
	var b strings.Builder
	b.WriteString("  [order]")
	if profile.Name != "" || profile.Phone != "" {
		fmt.Fprintf(&b, " for %s %s", profile.Name, profile.Phone)
	}
	b.WriteString("\n")
	for _, it := range snap.Items {
		fmt.Fprintf(&b, "    %d x %s  $%s\n", it.Quantity, it.Name, it.LineTotal().StringFixed(2))
	}
	if !snap.Empty() {
		fmt.Fprintf(&b, "    total $%s\n", snap.Total().StringFixed(2))
	}
	return b.String()
}
