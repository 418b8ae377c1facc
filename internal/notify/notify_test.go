package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/koustreak/imgbed/internal/botapi"
	"github.com/koustreak/imgbed/internal/logger"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendPhoto(ctx context.Context, chatID string, photo botapi.Upload, caption, parseMode string) (*botapi.Message, error) {
	args := m.Called(chatID, photo.Name, caption, parseMode)
	msg, _ := args.Get(0).(*botapi.Message)
	return msg, args.Error(1)
}

func (m *mockSender) SendMessage(ctx context.Context, chatID, text, parseMode string) (*botapi.Message, error) {
	args := m.Called(chatID, text, parseMode)
	msg, _ := args.Get(0).(*botapi.Message)
	return msg, args.Error(1)
}

var testEvent = Event{
	Source:      "Cloudflare R2",
	URL:         "https://img.example.com/r2/ab12cd34.png",
	DisplayName: "cat <1>.png",
	MimeType:    "image/png",
	Data:        []byte{1, 2, 3},
}

func TestNotify_Rich(t *testing.T) {
	s := new(mockSender)
	s.On("SendPhoto", "-100", "cat <1>.png", mock.MatchedBy(func(c string) bool {
		return assert.Contains(t, c, "<code>https://img.example.com/r2/ab12cd34.png</code>") &&
			assert.Contains(t, c, "cat &lt;1&gt;.png")
	}), "HTML").Return(&botapi.Message{MessageID: 1}, nil)

	out := New(s, "-100", logger.Nop()).Notify(context.Background(), testEvent)

	assert.Equal(t, ModeRich, out.Mode)
	assert.True(t, out.Delivered())
	s.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotify_FallsBackToPlain(t *testing.T) {
	richErr := errors.New("photo rejected")
	s := new(mockSender)
	s.On("SendPhoto", "-100", mock.Anything, mock.Anything, "HTML").Return(nil, richErr)
	s.On("SendMessage", "-100", mock.AnythingOfType("string"), "").Return(&botapi.Message{MessageID: 2}, nil)

	out := New(s, "-100", logger.Nop()).Notify(context.Background(), testEvent)

	assert.Equal(t, ModePlain, out.Mode)
	assert.ErrorIs(t, out.Err, richErr)
	s.AssertExpectations(t)
}

func TestNotify_Dropped(t *testing.T) {
	s := new(mockSender)
	s.On("SendPhoto", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	s.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("still down"))

	out := New(s, "-100", logger.Nop()).Notify(context.Background(), testEvent)

	assert.Equal(t, ModeDropped, out.Mode)
	assert.False(t, out.Delivered())
	assert.EqualError(t, out.Err, "still down")
}

func TestNotify_LargePayloadSkipsPreview(t *testing.T) {
	s := new(mockSender)
	s.On("SendMessage", "-100", mock.Anything, "").Return(&botapi.Message{}, nil)

	ev := testEvent
	ev.Data = make([]byte, MaxPreviewBytes)
	out := New(s, "-100", logger.Nop()).Notify(context.Background(), ev)

	assert.Equal(t, ModePlain, out.Mode)
	assert.NoError(t, out.Err)
	s.AssertNotCalled(t, "SendPhoto", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotify_Skipped(t *testing.T) {
	assert.Equal(t, ModeSkipped, New(nil, "-100", nil).Notify(context.Background(), testEvent).Mode)
	assert.Equal(t, ModeSkipped, New(new(mockSender), "", nil).Notify(context.Background(), testEvent).Mode)

	var n *Notifier
	assert.Equal(t, ModeSkipped, n.Notify(context.Background(), testEvent).Mode)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "rich", ModeRich.String())
	assert.Equal(t, "plain", ModePlain.String())
	assert.Equal(t, "dropped", ModeDropped.String())
	assert.Equal(t, "skipped", ModeSkipped.String())
}
