package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formroom/internal/notification"
	dErrors "formroom/pkg/domain-errors"
)

type fakeClient struct {
	channel string
	err     error
	calls   int
}

func (f *fakeClient) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.calls++
	f.channel = channelID
	return "", "", f.err
}

func TestSendPostsToConfiguredChannel(t *testing.T) {
	fake := &fakeClient{}
	a := &Adapter{cfg: Config{Channel: "C123"}, client: fake}

	err := a.Send(context.Background(), notification.Delivery{
		Title: "New submission",
		Body:  "Details inside",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "C123", fake.channel)
}

func TestSendMapsAPIFailure(t *testing.T) {
	fake := &fakeClient{err: errors.New("rate_limited")}
	a := &Adapter{cfg: Config{Channel: "C123"}, client: fake}

	err := a.Send(context.Background(), notification.Delivery{Title: "x"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDeliveryFailed))
}

func TestColorFollowsPriority(t *testing.T) {
	assert.Equal(t, "danger", colorFor("critical"))
	assert.Equal(t, "warning", colorFor("warning"))
	assert.Equal(t, "good", colorFor("normal"))
}
