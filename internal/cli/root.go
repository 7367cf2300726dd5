package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"netsleuth/internal/config"
	"netsleuth/internal/display"
	"netsleuth/internal/listener"
	"netsleuth/internal/logging"
	"netsleuth/internal/orchestrator"
	"netsleuth/internal/plan"
)

// App bundles everything the CLI needs; main wires it up.
type App struct {
	Cfg        *config.Config
	Engine     *orchestrator.Engine
	Dispatcher *orchestrator.Dispatcher
	Repo       *plan.Repository
}

func printResults(d *orchestrator.Dispatcher) {
	for res := range d.Results {
		switch {
		case res.Error != "":
			listener.AsyncPrintln(fmt.Sprintf("[Session %s FAILED] %s", res.SessionID, res.Error))
		case res.State != "DONE":
			listener.AsyncPrintln(fmt.Sprintf("[Session %s %s]", res.SessionID, res.State))
		default:
			listener.AsyncPrintln(fmt.Sprintf("[Session %s DONE]", res.SessionID))
			listener.AsyncPrintln(res.Summary)
		}
		if res.Metrics != nil {
			listener.AsyncPrintln(display.FormatSessionMetrics(res.Metrics))
		}
	}
}

func newRootCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "netsleuth [query]",
		Short: "Automated multi-device network investigations",
		Long: `netsleuth takes a natural-language question about your network devices,
picks an investigation plan, runs it against the targeted devices and
reports back. With a query argument it runs once and exits; without one
it starts an interactive session.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return runOnce(app, strings.Join(args, " "))
			}
			return runREPL(app)
		},
	}
}

func runOnce(app *App, query string) error {
	ctx := context.Background()
	if app.Cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.Cfg.SessionTimeout)
		defer cancel()
	}

	sess, sm, err := app.Engine.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}
	fmt.Println(sess.Summary)
	fmt.Println(display.FormatSessionMetrics(sm))
	return nil
}

func runREPL(app *App) error {
	if err := listener.Init(); err != nil {
		return fmt.Errorf("init terminal input: %w", err)
	}
	defer listener.Close()

	app.Dispatcher.Start()
	go printResults(app.Dispatcher)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nGoodbye!")
		logging.Sync()
		os.Exit(0)
	}()

	listener.AsyncPrintln("What should I investigate? (type 'plans' to list plans, 'cancel [id]' to abort, 'exit' to quit)")

	for {
		input := listener.GetInput()
		switch {
		case input == "":
			continue

		case strings.EqualFold(input, "exit"):
			fmt.Println("Goodbye!")
			return nil

		case strings.EqualFold(input, "plans"):
			plans, err := app.Repo.List()
			if err != nil {
				listener.AsyncPrintln(fmt.Sprintf("[Plans] %v", err))
				continue
			}
			listener.AsyncPrintln(display.FormatPlansCatalog(app.Cfg.PlansDir, plans))

		case strings.EqualFold(input, "cancel") || strings.HasPrefix(strings.ToLower(input), "cancel "):
			id := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(input, "cancel"), " "))
			if id == "" {
				// Bare cancel aborts whatever is running; make sure.
				if ans := listener.GetConfirmation("Cancel the running session? (y/n) "); ans != "y" && ans != "yes" {
					continue
				}
			}
			cancelled, err := app.Dispatcher.Cancel(id)
			if err != nil {
				listener.AsyncPrintln(fmt.Sprintf("[Cancel] %v", err))
				continue
			}
			listener.AsyncPrintln(fmt.Sprintf("[Session %s] cancellation requested", cancelled))

		default:
			id := app.Dispatcher.Submit(input)
			listener.AsyncPrintln(fmt.Sprintf("[Session %s] investigation started", id))
		}
	}
}

func Execute(app *App) {
	if err := newRootCmd(app).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
