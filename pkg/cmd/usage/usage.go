package usage

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/igolaizola/songclip/pkg/tracker"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	Days   int
}

// Run prints aggregated usage of the external generation services.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.DBType == "" {
		return fmt.Errorf("usage: db type is empty, usage tracking needs a database")
	}
	days := cfg.Days
	if days <= 0 {
		days = 30
	}
	t, err := tracker.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	if err := t.Start(ctx); err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	stats, err := t.Stats(ctx, days)
	if err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	if len(stats) == 0 {
		fmt.Printf("no usage recorded in the last %d days\n", days)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tCALLS\tFAILED\tCOST")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t$%.2f\n", s.Service, s.TotalCalls, s.FailedCalls, s.TotalCost)
	}
	return w.Flush()
}
