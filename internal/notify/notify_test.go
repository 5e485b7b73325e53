package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	msg, _ := args.Get(0).(*telego.Message)
	return msg, args.Error(1)
}

func TestTelegramNotify(t *testing.T) {
	sender := new(MockSender)
	var captured *telego.SendMessageParams
	sender.On("SendMessage", mock.Anything, mock.AnythingOfType("*telego.SendMessageParams")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*telego.SendMessageParams) }).
		Return(&telego.Message{MessageID: 1}, nil).Once()

	n := NewTelegramSender(sender, 42, 100, nil)
	require.NoError(t, n.Notify(context.Background(), "acct: published 2 clip(s)"))

	require.NotNil(t, captured)
	assert.Equal(t, int64(42), captured.ChatID.ID)
	assert.Equal(t, "acct: published 2 clip(s)", captured.Text)
	sender.AssertExpectations(t)
}

func TestTelegramNotifyError(t *testing.T) {
	sender := new(MockSender)
	boom := errors.New("bad gateway")
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil, boom)

	n := NewTelegramSender(sender, 42, 100, nil)
	err := n.Notify(context.Background(), "hello")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "chat 42")
}

func TestTelegramNotifyCancelled(t *testing.T) {
	sender := new(MockSender)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewTelegramSender(sender, 42, 100, nil)
	assert.ErrorIs(t, n.Notify(ctx, "hello"), context.Canceled)
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	long := strings.Repeat("ж", MaxMessageLength+10)
	got := truncate(long, MaxMessageLength)
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestNewTelegramRequiresChat(t *testing.T) {
	_, err := NewTelegram(testToken, 0, nil)
	assert.ErrorIs(t, err, ErrNoChat)
}

func TestNewTelegramAgainstAPIServer(t *testing.T) {
	var body struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	n, err := NewTelegram(testToken, 42, nil, WithAPIServer(srv.URL), WithHTTPClient(srv.Client()), WithRate(100))
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "run failed"))

	assert.Equal(t, "/bot"+testToken+"/sendMessage", path)
	assert.Equal(t, int64(42), body.ChatID)
	assert.Equal(t, "run failed", body.Text)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Notify(context.Background(), "anything"))
}
