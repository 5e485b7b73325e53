// Package tiktok publishes clips through the TikTok creator upload page,
// driving a Chrome instance with chromedp.
package tiktok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"clipsync/internal/account"
)

const (
	DefaultHomeURL   = "https://www.tiktok.com"
	DefaultUploadURL = "https://www.tiktok.com/creator#/upload?scene=creator_center&lang=en"
	DefaultLoginURL  = "https://www.tiktok.com/login/phone-or-email/email/?lang=en"

	DefaultTimeout   = 2 * time.Minute
	DefaultPostDelay = 5 * time.Second
)

var (
	// ErrNoSession is returned when an account has no stored session and no
	// login prompt is configured.
	ErrNoSession = errors.New("tiktok: no session and no login prompt")
	// ErrDayUnavailable is returned when the scheduling calendar does not offer the slot's day.
	ErrDayUnavailable = errors.New("tiktok: day not selectable in calendar")
	// ErrPickerEmpty is returned when the time picker renders no options.
	ErrPickerEmpty = errors.New("tiktok: time picker has no options")
)

// Selectors locate the upload form controls. The defaults match the creator
// center layout; they can be overridden when the page changes.
type Selectors struct {
	FileInput      string
	Caption        string
	ScheduleSwitch string
	AllowButton    string
	DatePicker     string
	// DayXPath is a format string taking the day of month.
	DayXPath     string
	NextMonth    string
	TimePicker   string
	HourOption   string
	MinuteOption string
	PostButton   string
}

// DefaultSelectors returns the selectors for the current upload page.
func DefaultSelectors() Selectors {
	return Selectors{
		FileInput:      `input[type="file"]`,
		Caption:        `div[spellcheck="false"]`,
		ScheduleSwitch: `#tux-3`,
		AllowButton:    `.tiktok-modal__modal-footer .tiktok-modal__modal-button.is-highlight`,
		DatePicker:     `.scheduled-picker .date-picker-input`,
		DayXPath:       `//span[contains(@class,"day") and contains(@class,"valid") and normalize-space(text())="%d"]`,
		NextMonth:      `.month-header-wrapper span:nth-child(3)`,
		TimePicker:     `.scheduled-picker .time-picker-input`,
		HourOption:     `.tiktok-timepicker-option-text.tiktok-timepicker-left`,
		MinuteOption:   `.tiktok-timepicker-option-text.tiktok-timepicker-right`,
		PostButton:     `.btn-post > button`,
	}
}

// Config controls the browser and the pages it visits.
type Config struct {
	HomeURL   string
	UploadURL string
	LoginURL  string
	Headless  bool
	// ExecPath is the Chrome binary. Empty lets chromedp find one.
	ExecPath string
	// Timeout bounds a single upload.
	Timeout time.Duration
	// PostDelay is how long to wait after pressing post. Negative means no wait.
	PostDelay time.Duration
	// Location is the time zone the scheduling picker works in.
	Location  *time.Location
	Selectors Selectors
}

func (c Config) withDefaults() Config {
	if c.HomeURL == "" {
		c.HomeURL = DefaultHomeURL
	}
	if c.UploadURL == "" {
		c.UploadURL = DefaultUploadURL
	}
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.PostDelay == 0:
		c.PostDelay = DefaultPostDelay
	case c.PostDelay < 0:
		c.PostDelay = 0
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Selectors == (Selectors{}) {
		c.Selectors = DefaultSelectors()
	}
	return c
}

// SessionSaver persists the account right after a new session is captured.
type SessionSaver func(ctx context.Context, acct *account.Account) error

// LoginPrompt blocks until the operator has logged in on the opened page.
type LoginPrompt func(ctx context.Context, accountID string) error

// Uploader is a publish.Agent bound to one account's browser session.
type Uploader struct {
	cfg    Config
	acct   *account.Account
	logger *slog.Logger

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Open starts a browser for acct and restores its session. Without a stored
// session the login page is opened, prompt waits for the operator, and the
// captured cookies are stored on acct and passed to save.
func Open(ctx context.Context, cfg Config, acct *account.Account, save SessionSaver, prompt LoginPrompt, logger *slog.Logger) (*Uploader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.Headless))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	u := &Uploader{
		cfg:         cfg,
		acct:        acct,
		logger:      logger.With("account", acct.ID),
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}
	u.acceptDialogs()

	if err := u.startSession(ctx, save, prompt); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}

// Close shuts the browser down.
func (u *Uploader) Close() {
	u.cancelTab()
	u.cancelAlloc()
}

// acceptDialogs accepts the empty popups the upload page raises at random.
func (u *Uploader) acceptDialogs() {
	chromedp.ListenTarget(u.ctx, func(ev any) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go func() {
				if err := chromedp.Run(u.ctx, page.HandleJavaScriptDialog(true)); err != nil {
					u.logger.Debug("accept dialog failed", "error", err)
				}
			}()
		}
	})
}

func (u *Uploader) startSession(ctx context.Context, save SessionSaver, prompt LoginPrompt) error {
	if err := chromedp.Run(u.ctx, chromedp.Navigate(u.cfg.HomeURL)); err != nil {
		return fmt.Errorf("tiktok: open %s: %w", u.cfg.HomeURL, err)
	}

	if u.acct.HasSession() {
		u.logger.Info("restoring session", "cookies", len(u.acct.Session.Cookies))
		if err := chromedp.Run(u.ctx, network.SetCookies(cookieParams(u.acct.Session.Cookies))); err != nil {
			return fmt.Errorf("tiktok: restore session: %w", err)
		}
		return nil
	}

	if prompt == nil {
		return ErrNoSession
	}
	u.logger.Info("no stored session, waiting for login", "url", u.cfg.LoginURL)
	if err := chromedp.Run(u.ctx, chromedp.Navigate(u.cfg.LoginURL)); err != nil {
		return fmt.Errorf("tiktok: open login page: %w", err)
	}
	if err := prompt(ctx, u.acct.ID); err != nil {
		return fmt.Errorf("tiktok: login: %w", err)
	}

	var cookies []*network.Cookie
	err := chromedp.Run(u.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("tiktok: capture session: %w", err)
	}
	u.acct.Session = &account.Session{Cookies: accountCookies(cookies), UpdatedAt: time.Now().UTC()}
	u.logger.Info("session captured", "cookies", len(cookies))

	if save != nil {
		if err := save(ctx, u.acct); err != nil {
			return fmt.Errorf("tiktok: save session: %w", err)
		}
	}
	return nil
}

// Publish uploads the file at path with caption, scheduled for at.
// Each call makes a single attempt.
func (u *Uploader) Publish(ctx context.Context, path, caption string, at time.Time) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("tiktok: resolve %s: %w", path, err)
	}

	runCtx, cancel := context.WithTimeout(u.ctx, u.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	sel := u.cfg.Selectors
	local := at.In(u.cfg.Location)
	u.logger.Info("uploading", "file", filepath.Base(abs), "at", local)

	err = chromedp.Run(runCtx,
		chromedp.Navigate(u.cfg.UploadURL),
		chromedp.Reload(),
		chromedp.SetUploadFiles(sel.FileInput, []string{abs}, chromedp.ByQuery),
		chromedp.Click(sel.Caption, chromedp.ByQuery),
		chromedp.SendKeys(sel.Caption, caption, chromedp.ByQuery),
		chromedp.Click(sel.ScheduleSwitch, chromedp.ByQuery),
		u.dismissAllow(),
		u.pickDay(local.Day()),
		u.pickTime(local.Hour(), local.Minute()),
		chromedp.WaitEnabled(sel.PostButton, chromedp.ByQuery),
		chromedp.Click(sel.PostButton, chromedp.ByQuery),
		chromedp.Sleep(u.cfg.PostDelay),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("tiktok: upload %s: %w", filepath.Base(abs), err)
	}
	u.logger.Info("scheduled", "file", filepath.Base(abs), "at", local)
	return nil
}

// dismissAllow clicks the one-time scheduling permission modal if it shows up.
func (u *Uploader) dismissAllow() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		var nodes []*cdp.Node
		err := chromedp.Nodes(u.cfg.Selectors.AllowButton, &nodes, chromedp.ByQuery).Do(wctx)
		if err != nil || len(nodes) == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			u.logger.Debug("no scheduling permission modal")
			return nil
		}
		return chromedp.MouseClickNode(nodes[0]).Do(ctx)
	})
}

// pickDay opens the calendar and clicks day, moving to the next month once
// when the current one does not offer it.
func (u *Uploader) pickDay(day int) chromedp.Action {
	sel := u.cfg.Selectors
	xpath := fmt.Sprintf(sel.DayXPath, day)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.Click(sel.DatePicker, chromedp.ByQuery).Do(ctx); err != nil {
			return err
		}
		for month := 0; month < 2; month++ {
			var nodes []*cdp.Node
			if err := chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0)).Do(ctx); err != nil {
				return err
			}
			if len(nodes) > 0 {
				return chromedp.MouseClickNode(nodes[0]).Do(ctx)
			}
			if month == 0 {
				if err := chromedp.Click(sel.NextMonth, chromedp.ByQuery).Do(ctx); err != nil {
					return err
				}
			}
		}
		return fmt.Errorf("%w: %d", ErrDayUnavailable, day)
	})
}

// pickTime opens the time picker and clicks the hour and the nearest minute
// option at or below minute.
func (u *Uploader) pickTime(hour, minute int) chromedp.Action {
	sel := u.cfg.Selectors
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.Click(sel.TimePicker, chromedp.ByQuery).Do(ctx); err != nil {
			return err
		}

		var hours []*cdp.Node
		if err := chromedp.Nodes(sel.HourOption, &hours, chromedp.ByQueryAll).Do(ctx); err != nil {
			return err
		}
		if hour >= len(hours) {
			return fmt.Errorf("%w: hour %d of %d", ErrPickerEmpty, hour, len(hours))
		}
		if err := chromedp.MouseClickNode(hours[hour]).Do(ctx); err != nil {
			return err
		}

		var minutes []*cdp.Node
		if err := chromedp.Nodes(sel.MinuteOption, &minutes, chromedp.ByQueryAll).Do(ctx); err != nil {
			return err
		}
		i, err := minuteIndex(minute, len(minutes))
		if err != nil {
			return err
		}
		if picked := i * (60 / len(minutes)); picked != minute {
			u.logger.Warn("minute snapped to picker step", "want", minute, "picked", picked)
		}
		return chromedp.MouseClickNode(minutes[i]).Do(ctx)
	})
}

// minuteIndex snaps minute to the picker's granularity. A picker with 12
// options has 5 minute steps, so 17 picks index 3 (":15").
func minuteIndex(minute, options int) (int, error) {
	if options <= 0 {
		return 0, ErrPickerEmpty
	}
	step := 60 / options
	if step == 0 {
		step = 1
	}
	i := minute / step
	if i >= options {
		i = options - 1
	}
	return i, nil
}

func cookieParams(cookies []account.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires)
			p.Expires = &exp
		}
		out = append(out, p)
	}
	return out
}

func accountCookies(cookies []*network.Cookie) []account.Cookie {
	out := make([]account.Cookie, 0, len(cookies))
	for _, c := range cookies {
		ac := account.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			sec := int64(c.Expires)
			ac.Expires = time.Unix(sec, int64((c.Expires-float64(sec))*1e9)).UTC()
		}
		out = append(out, ac)
	}
	return out
}
