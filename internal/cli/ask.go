package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"supportmesh/internal/client"
	"supportmesh/internal/tui"
)

func runAsk(cfg *AppConfig, args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	routerURL := fs.String("router", cfg.RouterURL, "router base URL")
	verbose := fs.Bool("verbose", false, "print per-task results")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: supportmesh ask [options] <query>")
		return 1
	}

	ctx, cancel := contextWithSignals()
	defer cancel()

	c := client.New(*routerURL)
	resp, err := c.Query(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		return 1
	}

	fmt.Printf("[%s | %s]\n%s\n", resp.Strategy, resp.Priority, resp.Answer)
	if *verbose {
		for i, r := range resp.Results {
			fmt.Printf("\ntask %d (%s): %s\n", i+1, r.CorrelationID, r.Status)
			if r.Error != nil {
				fmt.Printf("  error: %s %s\n", r.Error.Code, r.Error.Message)
			}
			for k, v := range r.Payload {
				fmt.Printf("  %s: %v\n", k, v)
			}
		}
	}
	return 0
}

func runChat(cfg *AppConfig, args []string) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	routerURL := fs.String("router", cfg.RouterURL, "router base URL")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if err := tui.Run(client.New(*routerURL)); err != nil {
		fmt.Fprintf(os.Stderr, "chat failed: %v\n", err)
		return 1
	}
	return 0
}
