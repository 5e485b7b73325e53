package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"clipsync/internal/account"
	"clipsync/internal/storage"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("empty value")
	}
	*s = append(*s, v)
	return nil
}

// accountFlags are the account settings shared by create and edit.
type accountFlags struct {
	channels          stringList
	schedule          stringList
	captions          bool
	overlay           bool
	clipDuration      time.Duration
	maxSourceDuration time.Duration
}

func (f *accountFlags) register(fs *flag.FlagSet) {
	fs.Var(&f.channels, "channel", "Source channel handle, ID or URL (repeatable)")
	fs.Var(&f.schedule, "schedule", "Daily posting time as HH:MM (repeatable, default 12:00 and 16:30)")
	fs.BoolVar(&f.captions, "captions", false, "Burn word-by-word captions into clips")
	fs.BoolVar(&f.overlay, "overlay", false, "Stack secondary filler content under the source")
	fs.DurationVar(&f.clipDuration, "clip-duration", account.DefaultClipDuration, "Length of each clip")
	fs.DurationVar(&f.maxSourceDuration, "max-source-duration", account.DefaultMaxSourceDuration, "Longest eligible source video")
}

// apply copies the flags that were set on the command line onto acct.
func (f *accountFlags) apply(acct *account.Account, set map[string]bool) {
	if set["channel"] {
		acct.Channels = append([]string(nil), f.channels...)
	}
	if set["schedule"] {
		acct.Schedule = append([]string(nil), f.schedule...)
	}
	if set["captions"] {
		acct.Preferences.Captions = f.captions
	}
	if set["overlay"] {
		acct.Preferences.Overlay = f.overlay
	}
	if set["clip-duration"] {
		acct.Preferences.ClipSeconds = int(f.clipDuration / time.Second)
	}
	if set["max-source-duration"] {
		acct.Preferences.MaxSourceSeconds = int(f.maxSourceDuration / time.Second)
	}
}

func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func cmdCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	configPath := configFlag(fs)
	id := fs.String("id", "", "Account ID, usually the login email (required)")
	var af accountFlags
	af.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync create [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		fmt.Fprintf(os.Stderr, "Error: missing --id\n")
		fs.Usage()
		os.Exit(1)
	}

	acct := account.New(strings.TrimSpace(*id))
	af.apply(acct, visited(fs))
	if err := acct.Validate(); err != nil {
		fatalf("%v", err)
	}

	withApp(*configPath, func(ctx context.Context, a *app) error {
		if err := a.store.Create(ctx, acct); err != nil {
			return fmt.Errorf("creating account: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Created account %s\n", acct.ID)
		return nil
	})
}

func cmdEdit(args []string) {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	configPath := configFlag(fs)
	var af accountFlags
	af.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync edit [flags] <account-id>\n\nOnly the flags given are changed.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing account-id\n")
		fs.Usage()
		os.Exit(1)
	}

	set := visited(fs)
	withApp(*configPath, func(ctx context.Context, a *app) error {
		locker, err := a.locker(ctx)
		if err != nil {
			return err
		}
		if err := editAccount(ctx, a.store, locker, argv[0], func(acct *account.Account) { af.apply(acct, set) }); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Updated account %s\n", argv[0])
		return nil
	})
}

// withLease runs fn while holding the account's run lock, so an edit never
// interleaves with a run of the same account.
func withLease(ctx context.Context, locker storage.Locker, id string, fn func() error) error {
	lease, err := locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("locking account: %w", err)
	}
	err = fn()
	if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil && err == nil {
		err = fmt.Errorf("releasing lock: %w", rerr)
	}
	return err
}

func editAccount(ctx context.Context, store storage.Store, locker storage.Locker, id string, apply func(*account.Account)) error {
	return withLease(ctx, locker, id, func() error {
		acct, err := store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("loading account: %w", err)
		}
		apply(acct)
		if err := acct.Validate(); err != nil {
			return err
		}
		if err := store.Save(ctx, acct); err != nil {
			return fmt.Errorf("saving account: %w", err)
		}
		return nil
	})
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync list [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	withApp(*configPath, func(ctx context.Context, a *app) error {
		ids, err := a.store.List(ctx)
		if err != nil {
			return fmt.Errorf("listing accounts: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No accounts found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tSCHEDULE\tCHANNELS\tPOSTED\tCLIPS")
		for _, id := range ids {
			acct, err := a.store.Load(ctx, id)
			if err != nil {
				fmt.Fprintf(w, "%s\t(%v)\t\t\t\n", id, err)
				continue
			}
			clips := "?"
			if rendered, err := a.library.List(id); err == nil {
				clips = strconv.Itoa(len(rendered))
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				acct.ID,
				strings.Join(acct.Schedule, " "),
				len(acct.Channels),
				len(acct.History),
				clips,
			)
		}
		w.Flush()

		fmt.Fprintf(os.Stderr, "\nTotal: %d accounts\n", len(ids))
		return nil
	})
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := configFlag(fs)
	output := fs.String("o", "", "Write to file instead of stdout")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync export [flags] <account-id>\n\nFlags:\n")
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
		acct, err := a.store.Load(ctx, argv[0])
		if err != nil {
			return fmt.Errorf("loading account: %w", err)
		}
		if *output == "" {
			return encodeAccount(os.Stdout, acct)
		}
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		if err := encodeAccount(f, acct); err != nil {
			f.Close()
			return fmt.Errorf("writing account: %w", err)
		}
		return f.Close()
	})
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := configFlag(fs)
	replace := fs.Bool("replace", false, "Overwrite an existing account with the same ID")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clipsync import [flags] <file>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing file\n")
		fs.Usage()
		os.Exit(1)
	}

	f, err := os.Open(argv[0])
	if err != nil {
		fatalf("%v", err)
	}
	acct, err := decodeAccount(f)
	f.Close()
	if err != nil {
		fatalf("reading %s: %v", argv[0], err)
	}

	withApp(*configPath, func(ctx context.Context, a *app) error {
		locker, err := a.locker(ctx)
		if err != nil {
			return err
		}
		if err := importAccount(ctx, a.store, locker, acct, *replace); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Imported account %s\n", acct.ID)
		return nil
	})
}

func importAccount(ctx context.Context, store storage.Store, locker storage.Locker, acct *account.Account, replace bool) error {
	return withLease(ctx, locker, acct.ID, func() error {
		var err error
		if replace {
			err = store.Save(ctx, acct)
		} else {
			err = store.Create(ctx, acct)
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("account %s already exists (use --replace)", acct.ID)
		}
		if err != nil {
			return fmt.Errorf("saving account: %w", err)
		}
		return nil
	})
}

func encodeAccount(w io.Writer, acct *account.Account) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(acct); err != nil {
		return err
	}
	return enc.Close()
}

// decodeAccount reads one account document and validates it.
func decodeAccount(r io.Reader) (*account.Account, error) {
	var acct account.Account
	if err := yaml.NewDecoder(r).Decode(&acct); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	return &acct, nil
}
