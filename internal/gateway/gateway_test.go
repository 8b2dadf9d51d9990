package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeGateway struct {
	prefix   string
	startErr error

	mu      sync.Mutex
	sent    []string
	stopped bool
}

func (f *fakeGateway) Prefix() string { return f.prefix }

func (f *fakeGateway) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeGateway) Send(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatID+"|"+text)
	return nil
}

func (f *fakeGateway) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

type fakeBrain struct {
	reply string
	err   error
	seen  []string
}

func (b *fakeBrain) Think(_ context.Context, chatID, input string) (string, error) {
	b.seen = append(b.seen, chatID+"|"+input)
	return b.reply, b.err
}

func TestRouterSendsByPrefix(t *testing.T) {
	tg := &fakeGateway{prefix: TelegramPrefix}
	dc := &fakeGateway{prefix: DiscordPrefix}
	r := NewRouter(tg, dc, nil)
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, "tg:42", "hello"))
	require.NoError(t, r.Send(ctx, "dc:chan-1", "hi"))
	assert.Equal(t, []string{"42|hello"}, tg.sent)
	assert.Equal(t, []string{"chan-1|hi"}, dc.sent)
	assert.Equal(t, []string{"dc", "tg"}, r.Prefixes())

	for _, bad := range []string{"slack:1", "42", "tg:", ""} {
		assert.ErrorIs(t, r.Send(ctx, bad, "x"), ErrUnknownChat, bad)
	}
}

func TestRouterRunStopsAllGateways(t *testing.T) {
	defer goleak.VerifyNone(t)

	tg := &fakeGateway{prefix: TelegramPrefix}
	dc := &fakeGateway{prefix: DiscordPrefix}
	r := NewRouter(tg, dc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
	assert.True(t, tg.stopped)
	assert.True(t, dc.stopped)
}

func TestRouterRunReturnsGatewayFailure(t *testing.T) {
	broken := &fakeGateway{prefix: TelegramPrefix, startErr: errors.New("bad token")}
	healthy := &fakeGateway{prefix: DiscordPrefix}

	err := NewRouter(broken, healthy).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tg gateway: bad token")
	assert.True(t, healthy.stopped)
}

func TestRespond(t *testing.T) {
	ctx := context.Background()
	var posted []string
	send := func(_ context.Context, text string) error {
		posted = append(posted, text)
		return nil
	}

	brain := &fakeBrain{reply: "sure"}
	respond(ctx, brain, send, "tg:1", "  hello ")
	respond(ctx, brain, send, "tg:1", "   ")
	assert.Equal(t, []string{"tg:1|hello"}, brain.seen)
	assert.Equal(t, []string{"sure"}, posted)

	posted = nil
	respond(ctx, &fakeBrain{err: errors.New("model down")}, send, "tg:1", "hi")
	assert.Equal(t, []string{troubleReply}, posted)

	posted = nil
	respond(ctx, &fakeBrain{reply: ""}, send, "tg:1", "hi")
	assert.Empty(t, posted)
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunk("short", 10))

	lines := "aaaa\nbbbb\ncccc"
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc"}, chunk(lines, 6))

	long := strings.Repeat("x", 25)
	parts := chunk(long, 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), "xxxxx"}, parts)

	accents := strings.Repeat("é", 6) // 12 bytes
	for _, p := range chunk(accents, 5) {
		assert.LessOrEqual(t, len(p), 5)
	}
	assert.Equal(t, accents, strings.Join(chunk(accents, 5), ""))
}
