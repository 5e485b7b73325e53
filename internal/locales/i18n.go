// Package locales holds the translated text drawn on clips, appended to
// captions and sent to the operator.
package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

// Message IDs.
const (
	MsgPartLabel           = "PartLabel"
	MsgRunSummary          = "RunSummary"
	MsgRunNothingPublished = "RunNothingPublished"
	MsgScheduleFull        = "ScheduleFull"
	MsgRunFailed           = "RunFailed"
)

// Bundle holds every embedded translation.
type Bundle struct {
	bundle *i18n.Bundle
	logger *slog.Logger
}

// Load parses the embedded message files. English is the fallback language.
func Load(logger *slog.Logger) (*Bundle, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := localeFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("locales: read embedded files: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, f.Name()); err != nil {
			return nil, fmt.Errorf("locales: load %s: %w", f.Name(), err)
		}
	}
	return &Bundle{bundle: b, logger: logger}, nil
}

// Languages returns the tags with translations.
func (b *Bundle) Languages() []language.Tag {
	return b.bundle.LanguageTags()
}

// Localizer creates a Localizer for the given language preferences, such as
// "es" or "pt-BR,pt;q=0.9". Unknown languages fall back to English.
func (b *Bundle) Localizer(langs ...string) *Localizer {
	return &Localizer{
		l:        i18n.NewLocalizer(b.bundle, langs...),
		fallback: i18n.NewLocalizer(b.bundle, language.English.String()),
		logger:   b.logger,
	}
}

// Localizer renders messages in one language.
type Localizer struct {
	l        *i18n.Localizer
	fallback *i18n.Localizer
	logger   *slog.Logger
}

// Message renders msgID with data. When the message is missing in every
// language the ID itself is returned.
func (l *Localizer) Message(msgID string, data map[string]any) string {
	cfg := &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data}
	msg, err := l.l.Localize(cfg)
	if err == nil {
		return msg
	}
	l.logger.Warn("localize failed, falling back to English", "message", msgID, "error", err)
	if msg, err := l.fallback.Localize(cfg); err == nil {
		return msg
	}
	return msgID
}

// PartLabel returns the label for a one-based part number, e.g. "Part 2".
func (l *Localizer) PartLabel(number int) string {
	return l.Message(MsgPartLabel, map[string]any{"Number": number})
}
