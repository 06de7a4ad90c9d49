package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draw-engine/internal/model"
)

type captured struct {
	Path   string
	Header http.Header
	Body   string
}

// recorder is an httptest server that records requests and answers with respond.
type recorder struct {
	*httptest.Server
	mu       sync.Mutex
	requests []captured
}

func newRecorder(t *testing.T, respond func(w http.ResponseWriter, r *http.Request, body string)) *recorder {
	rec := &recorder{}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, captured{Path: r.URL.Path, Header: r.Header.Clone(), Body: string(body)})
		rec.mu.Unlock()
		respond(w, r, string(body))
	}))
	t.Cleanup(rec.Close)
	return rec
}

func (r *recorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.requests...)
}

func ok(w http.ResponseWriter, _ *http.Request, _ string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":"1"}`))
}

func TestWhatsApp_TextAndImage(t *testing.T) {
	srv := newRecorder(t, ok)
	ch := &model.Channel{ID: "c1", Type: model.ChannelWhatsApp, Recipients: []string{"group-a", "group-b"}}
	s, err := NewSender(ch, Endpoints{WhatsAppURL: srv.URL, WhatsAppAPIKey: "secret"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, model.Content{Text: "hola"}))
	require.NoError(t, s.Send(ctx, model.Content{Text: "hola", ImageURL: "https://cdn/x.png"}))

	reqs := srv.all()
	require.Len(t, reqs, 4)
	assert.Equal(t, "/api/whatsapp/send/text", reqs[0].Path)
	assert.Equal(t, "secret", reqs[0].Header.Get("x-api-key"))
	assert.JSONEq(t, `{"chatId":"group-a","message":"hola"}`, reqs[0].Body)
	assert.Equal(t, "/api/whatsapp/send/image", reqs[3].Path)
	assert.JSONEq(t, `{"chatId":"group-b","caption":"hola","imageUrl":"https://cdn/x.png"}`, reqs[3].Body)
}

func TestWhatsApp_FailsWhenAnyRecipientFails(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if strings.Contains(body, "group-b") {
			http.Error(w, "not in group", http.StatusBadRequest)
			return
		}
		ok(w, r, body)
	})
	ch := &model.Channel{ID: "c1", Type: model.ChannelWhatsApp, Recipients: []string{"group-a", "group-b", "group-c"}}
	s, err := NewSender(ch, Endpoints{WhatsAppURL: srv.URL})
	require.NoError(t, err)

	err = s.Send(context.Background(), model.Content{Text: "hola"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, err.Error(), "group-b")
	assert.Len(t, srv.all(), 3)
}

func TestWhatsApp_NoRecipients(t *testing.T) {
	s, err := NewSender(&model.Channel{Type: model.ChannelWhatsApp}, Endpoints{WhatsAppURL: "http://localhost"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Send(context.Background(), model.Content{Text: "x"}), ErrNoRecipients)
}

func TestFacebook_PhotoOrFeed(t *testing.T) {
	srv := newRecorder(t, ok)
	ch := &model.Channel{Type: model.ChannelFacebook, Settings: map[string]string{"page_id": "123", "access_token": "tok"}}
	s, err := NewSender(ch, Endpoints{FacebookURL: srv.URL + "/v18.0"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, model.Content{Text: "result", ImageURL: "https://cdn/x.png"}))
	require.NoError(t, s.Send(ctx, model.Content{Text: "result"}))

	reqs := srv.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/v18.0/123/photos", reqs[0].Path)
	form, _ := url.ParseQuery(reqs[0].Body)
	assert.Equal(t, "https://cdn/x.png", form.Get("url"))
	assert.Equal(t, "result", form.Get("caption"))
	assert.Equal(t, "tok", form.Get("access_token"))
	assert.Equal(t, "/v18.0/123/feed", reqs[1].Path)
}

func TestFacebook_MissingSetting(t *testing.T) {
	_, err := NewSender(&model.Channel{Type: model.ChannelFacebook}, Endpoints{})
	assert.ErrorIs(t, err, ErrMissingSetting)
}

func TestInstagram_ContainerThenPublish(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/media") {
			_, _ = w.Write([]byte(`{"id":"container-9"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"media-1"}`))
	})
	ch := &model.Channel{Type: model.ChannelInstagram, Settings: map[string]string{"user_id": "77", "access_token": "tok"}}
	s, err := NewSender(ch, Endpoints{InstagramURL: srv.URL})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Send(context.Background(), model.Content{Text: "no image"}), ErrImageRequired)

	require.NoError(t, s.Send(context.Background(), model.Content{Text: "cap", ImageURL: "https://cdn/x.png"}))
	reqs := srv.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/77/media", reqs[0].Path)
	assert.Equal(t, "/77/media_publish", reqs[1].Path)
	form, _ := url.ParseQuery(reqs[1].Body)
	assert.Equal(t, "container-9", form.Get("creation_id"))
}

func TestTikTok_PhotoInit(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"data":{"publish_id":"p1"},"error":{"code":"ok","message":""}}`))
	})
	ch := &model.Channel{Type: model.ChannelTikTok, Settings: map[string]string{"access_token": "tok"}}
	s, err := NewSender(ch, Endpoints{TikTokURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), model.Content{Text: "Lotto 08:00\nGanador 07", ImageURL: "https://cdn/x.png"}))
	reqs := srv.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v2/post/publish/content/init/", reqs[0].Path)
	assert.Equal(t, "Bearer tok", reqs[0].Header.Get("Authorization"))

	var body tiktokInit
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &body))
	assert.Equal(t, "PHOTO", body.MediaType)
	assert.Equal(t, "Lotto 08:00", body.PostInfo.Title)
	assert.Equal(t, []string{"https://cdn/x.png"}, body.SourceInfo.PhotoImages)
}

func TestTikTok_APIErrorCode(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"error":{"code":"access_token_invalid","message":"expired"}}`))
	})
	ch := &model.Channel{Type: model.ChannelTikTok, Settings: map[string]string{"access_token": "tok"}}
	s, err := NewSender(ch, Endpoints{TikTokURL: srv.URL})
	require.NoError(t, err)

	err = s.Send(context.Background(), model.Content{Text: "x", ImageURL: "https://cdn/x.png"})
	assert.ErrorContains(t, err, "access_token_invalid")
}

func TestTelegram_TextAndPhoto(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/sendPhoto") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":2,"date":0,"chat":{"id":-100,"type":"channel"},` +
				`"photo":[{"file_id":"x","file_unique_id":"u","width":1,"height":1}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"channel"}}}`))
	})
	ch := &model.Channel{
		Type:       model.ChannelTelegram,
		Recipients: []string{"-100"},
		Settings:   map[string]string{"bot_token": "123:abc"},
	}
	s, err := NewSender(ch, Endpoints{TelegramURL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, model.Content{Text: "<b>07</b>"}))
	require.NoError(t, s.Send(ctx, model.Content{Text: "cap", ImageURL: "https://cdn/x.png"}))

	reqs := srv.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/bot123:abc/sendMessage", reqs[0].Path)
	assert.Contains(t, reqs[0].Body, "-100")
	assert.Equal(t, "/bot123:abc/sendPhoto", reqs[1].Path)
	assert.Contains(t, reqs[1].Body, "https://cdn/x.png")
}

func TestTelegram_HungServerHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := newRecorder(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		<-release
	})
	defer close(release)

	ch := &model.Channel{Type: model.ChannelTelegram, Recipients: []string{"1"}, Settings: map[string]string{"bot_token": "t"}}
	s, err := NewSender(ch, Endpoints{TelegramURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Send(ctx, model.Content{Text: "x"}), context.DeadlineExceeded)
}

func TestTelegram_MalformedPhotoReplyIsAnError(t *testing.T) {
	srv := newRecorder(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"channel"}}}`))
	})
	ch := &model.Channel{Type: model.ChannelTelegram, Recipients: []string{"-100"}, Settings: map[string]string{"bot_token": "t"}}
	s, err := NewSender(ch, Endpoints{TelegramURL: srv.URL})
	require.NoError(t, err)

	err = s.Send(context.Background(), model.Content{Text: "cap", ImageURL: "https://cdn/x.png"})
	assert.ErrorContains(t, err, "telegram:")
}

func TestTelegram_ClientTimeoutEndsHungRequest(t *testing.T) {
	release := make(chan struct{})
	srv := newRecorder(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		<-release
	})
	defer close(release)

	ch := &model.Channel{Type: model.ChannelTelegram, Recipients: []string{"1"}, Settings: map[string]string{"bot_token": "t"}}
	s, err := NewSender(ch, Endpoints{TelegramURL: srv.URL, Client: &http.Client{}, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	assert.Error(t, s.Send(context.Background(), model.Content{Text: "x"}))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBoundedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	assert.Equal(t, 5*time.Second, boundedClient(Endpoints{Client: shared, Timeout: 5 * time.Second}).Timeout)
	assert.Equal(t, time.Minute, shared.Timeout)

	tight := &http.Client{Timeout: time.Second}
	assert.Same(t, tight, boundedClient(Endpoints{Client: tight, Timeout: 5 * time.Second}))
	assert.Same(t, shared, boundedClient(Endpoints{Client: shared}))
}

func TestNewSender_UnsupportedType(t *testing.T) {
	_, err := NewSender(&model.Channel{Type: "SMS"}, Endpoints{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

type countingSender struct {
	calls atomic.Int32
	err   error
}

func (c *countingSender) Send(context.Context, model.Content) error {
	c.calls.Add(1)
	return c.err
}

func TestGuard_BreakerOpensPerChannel(t *testing.T) {
	g := NewGuard(GuardConfig{BreakerThreshold: 2, BreakerCooldown: time.Minute})
	defer g.Close()

	failing := &countingSender{err: errors.New("boom")}
	healthy := &countingSender{}
	bad := NewConfigured(&model.Channel{ID: "bad", Type: model.ChannelFacebook}, failing, g)
	good := NewConfigured(&model.Channel{ID: "good", Type: model.ChannelFacebook}, healthy, g)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.Error(t, bad.Send(ctx, model.Content{}))
		assert.NoError(t, good.Send(ctx, model.Content{}))
	}

	assert.Equal(t, int32(2), failing.calls.Load())
	assert.Equal(t, int32(4), healthy.calls.Load())
	assert.Equal(t, "open", g.BreakerState("bad"))
	assert.Equal(t, "closed", g.BreakerState("good"))
}

func TestGuard_RateLimitHonoursContext(t *testing.T) {
	g := NewGuard(GuardConfig{RatePerMinute: 1})
	defer g.Close()
	s := &countingSender{}
	ch := NewConfigured(&model.Channel{ID: "c", Type: model.ChannelTikTok}, s, g)

	require.NoError(t, ch.Send(context.Background(), model.Content{}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.Error(t, ch.Send(ctx, model.Content{}))
	assert.Equal(t, int32(1), s.calls.Load())
}

type rows []*model.Channel

func (r rows) FindActiveChannelsForGame(_ context.Context, gameID string) ([]*model.Channel, error) {
	var out []*model.Channel
	for _, c := range r {
		if c.GameID == gameID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestRegistry_BuildsChannels(t *testing.T) {
	srv := newRecorder(t, ok)
	reg := NewRegistry(rows{
		{ID: "wa", GameID: "g", Type: model.ChannelWhatsApp, Name: "Grupo", Recipients: []string{"x"}},
		{ID: "fb", GameID: "g", Type: model.ChannelFacebook, Name: "Page"},
		{ID: "other", GameID: "h", Type: model.ChannelWhatsApp},
	}, Endpoints{WhatsAppURL: srv.URL}, nil)

	chans, err := reg.FindActiveChannelsForGame(context.Background(), "g")
	require.NoError(t, err)
	require.Len(t, chans, 2)

	assert.Equal(t, "wa", chans[0].ID())
	assert.Contains(t, chans[0].MessageTemplate(), "{{winnerNumberPadded}}")
	assert.NoError(t, chans[0].Send(context.Background(), model.Content{Text: "x"}))

	// misconfigured page: present, fails on send
	assert.Equal(t, "fb", chans[1].ID())
	assert.ErrorIs(t, chans[1].Send(context.Background(), model.Content{Text: "x"}), ErrMissingSetting)
}
