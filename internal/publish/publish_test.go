package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clipsync/internal/account"
	"clipsync/internal/allocator"
	"clipsync/internal/clip"
)

type MockAgent struct {
	mock.Mock
}

func (m *MockAgent) Publish(ctx context.Context, path, caption string, at time.Time) error {
	return m.Called(ctx, path, caption, at).Error(0)
}

type MockSaver struct {
	mock.Mock
	saved [][]account.HistoryEntry
}

func (m *MockSaver) Save(ctx context.Context, acct *account.Account) error {
	m.saved = append(m.saved, append([]account.HistoryEntry(nil), acct.History...))
	return m.Called(ctx, acct).Error(0)
}

type MockRemover struct {
	mock.Mock
}

func (m *MockRemover) Remove(c clip.Rendered) error {
	return m.Called(c).Error(0)
}

type MockTitles struct {
	mock.Mock
}

func (m *MockTitles) Title(ctx context.Context, videoID string) (string, error) {
	args := m.Called(ctx, videoID)
	return args.String(0), args.Error(1)
}

type spanish struct{}

func (spanish) PartLabel(n int) string { return "Parte " + string(rune('0'+n)) }

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func assignment(content string, part int, slot time.Time) allocator.Assignment {
	ref := clip.Ref{AccountID: "acct", Part: part, ContentID: content}
	return allocator.Assignment{Clip: clip.Rendered{Ref: ref, Path: "/clips/" + ref.Filename()}, Slot: slot}
}

func TestCaptionUsesTitleLabelAndHashtags(t *testing.T) {
	titles := new(MockTitles)
	titles.On("Title", mock.Anything, "abcdefghijk").Return("  Big Talk  ", nil)

	c := &Captioner{Titles: titles, Labels: spanish{}, Hashtags: []string{"fyp", "#shorts", " "}}
	got := c.Caption(context.Background(), clip.Ref{AccountID: "acct", Part: 1, ContentID: "abcdefghijk"})
	assert.Equal(t, "Big Talk | Parte 2 #fyp #shorts", got)
}

func TestCaptionFallsBackToContentID(t *testing.T) {
	titles := new(MockTitles)
	titles.On("Title", mock.Anything, "abcdefghijk").Return("", errors.New("quota"))

	c := &Captioner{Titles: titles}
	got := c.Caption(context.Background(), clip.Ref{AccountID: "acct", ContentID: "abcdefghijk"})
	assert.Equal(t, "abcdefghijk | Part 1", got)
}

func TestCommitPublishesInSlotOrder(t *testing.T) {
	acct := account.New("acct")
	later := assignment("bbbbbbbbbbb", 0, base.Add(4*time.Hour))
	earlier := assignment("aaaaaaaaaaa", 0, base)

	var order []time.Time
	agent := new(MockAgent)
	agent.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.Get(3).(time.Time)) }).
		Return(nil)
	saver := new(MockSaver)
	saver.On("Save", mock.Anything, acct).Return(nil)
	remover := new(MockRemover)
	remover.On("Remove", mock.Anything).Return(nil)

	c := &Committer{Agent: agent, Captioner: &Captioner{}, Store: saver, Library: remover}
	published, err := c.Commit(context.Background(), acct, []allocator.Assignment{later, earlier})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{earlier.Slot, later.Slot}, order)
	assert.Equal(t, []allocator.Assignment{earlier, later}, published)
	require.Len(t, acct.History, 2)
	assert.Equal(t, "aaaaaaaaaaa", acct.History[0].ContentID)
	assert.Equal(t, "bbbbbbbbbbb", acct.History[1].ContentID)
	saver.AssertNumberOfCalls(t, "Save", 2)
	remover.AssertNumberOfCalls(t, "Remove", 2)
}

func TestCommitSavesBeforeRemoving(t *testing.T) {
	acct := account.New("acct")
	a := assignment("aaaaaaaaaaa", 0, base)

	var steps []string
	agent := new(MockAgent)
	agent.On("Publish", mock.Anything, a.Clip.Path, "aaaaaaaaaaa | Part 1", base).
		Run(func(mock.Arguments) { steps = append(steps, "publish") }).Return(nil)
	saver := new(MockSaver)
	saver.On("Save", mock.Anything, acct).Run(func(mock.Arguments) { steps = append(steps, "save") }).Return(nil)
	remover := new(MockRemover)
	remover.On("Remove", a.Clip).Run(func(mock.Arguments) { steps = append(steps, "remove") }).Return(nil)

	c := &Committer{Agent: agent, Captioner: &Captioner{}, Store: saver, Library: remover}
	_, err := c.Commit(context.Background(), acct, []allocator.Assignment{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"publish", "save", "remove"}, steps)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, []account.HistoryEntry{{ContentID: "aaaaaaaaaaa", Timestamp: base}}, saver.saved[0])
}

func TestCommitStopsAtFirstPublishFailure(t *testing.T) {
	acct := account.New("acct")
	first := assignment("aaaaaaaaaaa", 0, base)
	second := assignment("aaaaaaaaaaa", 1, base.Add(time.Hour))
	third := assignment("aaaaaaaaaaa", 2, base.Add(2*time.Hour))

	boom := errors.New("upload rejected")
	agent := new(MockAgent)
	agent.On("Publish", mock.Anything, first.Clip.Path, mock.Anything, mock.Anything).Return(nil)
	agent.On("Publish", mock.Anything, second.Clip.Path, mock.Anything, mock.Anything).Return(boom)
	saver := new(MockSaver)
	saver.On("Save", mock.Anything, acct).Return(nil)
	remover := new(MockRemover)
	remover.On("Remove", first.Clip).Return(nil)

	c := &Committer{Agent: agent, Captioner: &Captioner{}, Store: saver, Library: remover}
	published, err := c.Commit(context.Background(), acct, []allocator.Assignment{first, second, third})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorIs(t, err, boom)
	var agentErr *AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, second.Clip.Ref, agentErr.Clip)
	assert.Equal(t, second.Slot, agentErr.Slot)

	assert.Equal(t, []allocator.Assignment{first}, published)
	assert.Len(t, acct.History, 1)
	agent.AssertNotCalled(t, "Publish", mock.Anything, third.Clip.Path, mock.Anything, mock.Anything)
	remover.AssertNotCalled(t, "Remove", second.Clip)
}

func TestCommitKeepsClipWhenSaveFails(t *testing.T) {
	acct := account.New("acct")
	a := assignment("aaaaaaaaaaa", 0, base)

	agent := new(MockAgent)
	agent.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	saver := new(MockSaver)
	saver.On("Save", mock.Anything, acct).Return(errors.New("disk full"))
	remover := new(MockRemover)

	c := &Committer{Agent: agent, Captioner: &Captioner{}, Store: saver, Library: remover}
	published, err := c.Commit(context.Background(), acct, []allocator.Assignment{a})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPublishFailed)
	assert.Empty(t, published)
	remover.AssertNotCalled(t, "Remove", mock.Anything)
}

func TestCommitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agent := new(MockAgent)
	c := &Committer{Agent: agent, Captioner: &Captioner{}, Store: new(MockSaver), Library: new(MockRemover)}
	_, err := c.Commit(ctx, account.New("acct"), []allocator.Assignment{assignment("aaaaaaaaaaa", 0, base)})
	assert.ErrorIs(t, err, context.Canceled)
	agent.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
