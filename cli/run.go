package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"clipsync/internal/runner"
	"clipsync/internal/server"
)

const slotLayout = "Mon 2006-01-02 15:04"

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := configFlag(fs)
	all := fs.Bool("all", false, "Run every stored account")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync run [flags] [account-id...]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	ids := fs.Args()
	if !*all && len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "Error: give account ids or --all\n")
		fs.Usage()
		os.Exit(1)
	}

	var failed int
	withApp(*configPath, func(ctx context.Context, a *app) error {
		a.initSentry()
		if *all {
			var err error
			if ids, err = a.store.List(ctx); err != nil {
				return fmt.Errorf("listing accounts: %w", err)
			}
		}
		r, err := a.runner(ctx)
		if err != nil {
			return err
		}

		reports := r.RunAll(ctx, ids)
		for _, rep := range reports {
			if rep.Failed() {
				failed++
				reportFailure(rep)
			}
		}
		printReports(os.Stdout, reports)
		return nil
	})
	if failed > 0 {
		fatalf("%d account(s) failed", failed)
	}
}

func printReports(out io.Writer, reports []runner.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tPUBLISHED\tFIRST\tLAST\tRESULT")
	for _, rep := range reports {
		first, last := "", ""
		if n := len(rep.Published); n > 0 {
			first = rep.Published[0].Slot.Format(slotLayout)
			last = rep.Published[n-1].Slot.Format(slotLayout)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", rep.AccountID, len(rep.Published), first, last, result(rep))
	}
	w.Flush()
}

func result(rep runner.Report) string {
	switch {
	case rep.Err == nil:
		return "ok"
	case errors.Is(rep.Err, runner.ErrSaturatedSchedule):
		return "schedule is full"
	default:
		return "error: " + rep.Err.Error()
	}
}

func cmdPlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync plan [flags] <account-id>\n\nNothing is downloaded, rendered or published.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing account-id\n")
		fs.Usage()
		os.Exit(1)
	}

	withApp(*configPath, func(ctx context.Context, a *app) error {
		plan, err := a.planner().Plan(ctx, argv[0])
		if err != nil {
			return err
		}
		printPlan(os.Stdout, plan)
		return nil
	})
}

func printPlan(out io.Writer, plan *runner.Plan) {
	if len(plan.Entries) == 0 {
		fmt.Fprintln(out, "Schedule is full.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tCONTENT ID\tPART\tFILE")
	for _, e := range plan.Entries {
		if e.Clip == nil {
			fmt.Fprintf(w, "%s\t(needs new content)\t\t\n", e.Slot.Format(slotLayout))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Slot.Format(slotLayout), e.Clip.ContentID, e.Clip.Label(), e.Clip.Filename())
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d slot(s), %d need new content\n", len(plan.Entries), plan.NeedsContent())
}

func cmdAddContent(args []string) {
	fs := flag.NewFlagSet("add-content", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync add-content [flags] <url...>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	urls := fs.Args()
	if len(urls) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing url\n")
		fs.Usage()
		os.Exit(1)
	}

	withApp(*configPath, func(ctx context.Context, a *app) error {
		loc, err := a.localizer()
		if err != nil {
			return err
		}
		p := a.pipeline(loc)
		var errs []error
		for _, url := range urls {
			fmt.Fprintf(os.Stderr, "Downloading %s...\n", url)
			path, err := p.AddSecondaryContent(ctx, url)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", url, err))
				continue
			}
			fmt.Println(path)
		}
		return errors.Join(errs...)
	})
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := configFlag(fs)
	addr := fs.String("addr", "", "Listen address (default from listen_addr)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync serve [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	withApp(*configPath, func(ctx context.Context, a *app) error {
		listen := a.cfg.ListenAddr
		if *addr != "" {
			listen = *addr
		}
		h := server.NewHandler(a.store, a.library, a.planner(), a.logger)
		return server.Serve(ctx, listen, server.NewRouter(h), a.logger)
	})
}
