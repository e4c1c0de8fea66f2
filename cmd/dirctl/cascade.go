package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"erpdir/internal/core/id"
	"erpdir/internal/domain/cascade"
)

func cascadeCommand() *cli.Command {
	return &cli.Command{
		Name:  "cascade",
		Usage: "walk the dependent fields revealed by a parent value",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "company", Usage: "company id", Value: demoCompanyID},
			&cli.StringFlag{Name: "field", Usage: "parent relation field id", Required: true},
			&cli.StringFlag{Name: "parent", Usage: "selected parent record id", Required: true},
			&cli.StringSliceFlag{Name: "select", Usage: "name=value selection, applied in order"},
			&cli.StringSliceFlag{Name: "search", Usage: "name=term search"},
			&cli.DurationFlag{Name: "wait", Usage: "quiet period before exiting", Value: 2 * time.Second},
		},
		Action: func(c *cli.Context) error {
			companyID, err := id.Parse(c.String("company"))
			if err != nil {
				return fmt.Errorf("invalid company: %w", err)
			}
			fieldID, err := id.Parse(c.String("field"))
			if err != nil {
				return fmt.Errorf("invalid field: %w", err)
			}
			selects, err := pairs(c.StringSlice("select"))
			if err != nil {
				return err
			}
			searches, err := pairs(c.StringSlice("search"))
			if err != nil {
				return err
			}

			ctx, a, _, err := open(c)
			if err != nil {
				return err
			}
			defer a.Close()

			results := make(chan cascade.Result, 64)
			session := cascade.NewSession(a.Cascade, companyID, fieldID, cascade.SessionConfig{
				Loader: cascade.LoaderConfig{
					Debounce:        a.Config.SearchDebounce,
					MinSearchLength: a.Config.SearchMinLength,
				},
				OnOptions: func(r cascade.Result) {
					select {
					case results <- r:
					default:
					}
				},
			})
			defer session.Close()

			if err := session.SelectParent(ctx, c.String("parent")); err != nil {
				return err
			}
			for _, p := range selects {
				if err := session.Select(p[0], p[1]); err != nil {
					return err
				}
			}
			for _, p := range searches {
				session.Search(p[0], p[1])
			}

			fmt.Printf("state: %s\n", session.State())
			for _, f := range session.Visible() {
				fmt.Printf("visible: %s (%s) required=%t\n", f.FieldName, f.DisplayName, f.Required)
			}

			quiet := time.NewTimer(c.Duration("wait") + a.Config.SearchDebounce)
			defer quiet.Stop()
			for done := false; !done; {
				select {
				case r := <-results:
					printResult(r)
				case <-quiet.C:
					done = true
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			if err := session.Validate(); err != nil {
				fmt.Printf("incomplete: %v\n", err)
			}
			return nil
		},
	}
}

func printResult(r cascade.Result) {
	if r.Err != nil {
		fmt.Printf("%s: error: %v\n", r.Field, r.Err)
		return
	}
	label := r.Field
	if r.Search != "" {
		label += fmt.Sprintf(" [%s]", r.Search)
	}
	fmt.Printf("%s: %d options\n", label, len(r.Options))
	for _, o := range r.Options {
		fmt.Printf("  %s  %s\n", o.ID, o.Label)
	}
}

func pairs(raw []string) ([][2]string, error) {
	out := make([][2]string, 0, len(raw))
	for _, s := range raw {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected name=value, got %q", s)
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}
