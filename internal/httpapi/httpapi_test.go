package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draw-engine/internal/model"
	"draw-engine/internal/repository"
	"draw-engine/internal/service"
)

type fakeEngine struct {
	draws      map[string]*model.Draw
	genDate    time.Time
	lastFilter model.DrawFilter
	published  []string
	config     map[string]string
	pauses     []*model.DrawPause
	err        error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{draws: map[string]*model.Draw{}, config: map[string]string{}}
}

func (f *fakeEngine) draw(id string, status model.DrawStatus) *model.Draw {
	d := &model.Draw{
		ID:       id,
		GameID:   "g1",
		DrawDate: model.CalendarDate(2025, time.December, 24),
		DrawTime: "08:00:00",
		Status:   status,
	}
	f.draws[id] = d
	return d
}

func (f *fakeEngine) CloseDue(context.Context, time.Time) (*service.SweepResult, error) {
	return &service.SweepResult{Closed: 1}, f.err
}

func (f *fakeEngine) ProcessElapsed(context.Context, time.Time) (*service.SweepResult, error) {
	return &service.SweepResult{Drawn: 2}, f.err
}

func (f *fakeEngine) Preselect(_ context.Context, id string, itemID *string) (*model.Draw, error) {
	d, ok := f.draws[id]
	if !ok {
		return nil, service.ErrDrawNotFound
	}
	if !d.Status.AllowsPreselect() {
		return nil, fmt.Errorf("%w: cannot preselect", service.ErrInvalidStateTransition)
	}
	pick := "random-item"
	if itemID != nil {
		pick = *itemID
	}
	d.PreselectedItemID = &pick
	return d, nil
}

func (f *fakeEngine) ChangeWinner(_ context.Context, id, itemID string) (*model.Draw, error) {
	d, ok := f.draws[id]
	if !ok {
		return nil, service.ErrDrawNotFound
	}
	if itemID == "foreign" {
		return nil, service.ErrItemNotInGame
	}
	d.WinnerItemID = &itemID
	return d, nil
}

func (f *fakeEngine) Cancel(_ context.Context, id, reason string) (*model.Draw, error) {
	d, ok := f.draws[id]
	if !ok {
		return nil, service.ErrDrawNotFound
	}
	d.Status = model.StatusCancelled
	d.Notes = &reason
	return d, nil
}

func (f *fakeEngine) CreateManual(_ context.Context, gameID string, date time.Time, drawTime string) (*model.Draw, error) {
	canonical, err := model.NormalizeDrawTime(drawTime)
	if err != nil {
		return nil, err
	}
	d := f.draw("manual", model.StatusScheduled)
	d.GameID, d.DrawDate, d.DrawTime = gameID, date, canonical
	return d, nil
}

func (f *fakeEngine) GenerateDaily(_ context.Context, date time.Time) (*service.GenerateResult, error) {
	f.genDate = date
	return &service.GenerateResult{Date: date.Format(model.DateLayout), Created: 3}, nil
}

func (f *fakeEngine) Publish(_ context.Context, id string, filter []string) (*service.PublishResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, id+":"+strings.Join(filter, ","))
	return &service.PublishResult{DrawID: id, Status: model.StatusPublished}, nil
}

func (f *fakeEngine) GetByID(_ context.Context, id string) (*model.Draw, error) {
	d, ok := f.draws[id]
	if !ok {
		return nil, repository.ErrDrawNotFound
	}
	return d, nil
}

func (f *fakeEngine) FindMany(_ context.Context, filter model.DrawFilter) ([]*model.Draw, error) {
	f.lastFilter = filter
	var out []*model.Draw
	for _, d := range f.draws {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeEngine) ListByDraw(_ context.Context, drawID string) ([]*model.Publication, error) {
	msg := "timeout"
	return []*model.Publication{
		{ID: 1, DrawID: drawID, ChannelID: "c1", ChannelType: model.ChannelWhatsApp, Success: true},
		{ID: 2, DrawID: drawID, ChannelID: "c2", ChannelType: model.ChannelTikTok, Error: &msg},
	}, nil
}

func (f *fakeEngine) ListByEntity(_ context.Context, entity, entityID string) ([]*model.AuditLog, error) {
	return []*model.AuditLog{
		{Action: model.AuditWinnerChanged, Entity: entity, EntityID: entityID, Actor: model.ActorOperator, Changes: map[string]any{"from": "i1", "to": "i2"}},
		{Action: model.AuditDrawClosed, Entity: entity, EntityID: entityID, Actor: model.ActorSystem},
	}, nil
}

func (f *fakeEngine) Set(_ context.Context, key, value string) error {
	f.config[key] = value
	return nil
}

func (f *fakeEngine) EmergencyStop(context.Context) (bool, error) {
	return f.config[repository.KeyEmergencyStop] == "true", nil
}

func (f *fakeEngine) CreatePause(_ context.Context, p *model.DrawPause) error {
	p.ID = "pause-1"
	f.pauses = append(f.pauses, p)
	return nil
}

func (f *fakeEngine) ListGames(context.Context) ([]*model.Game, error) {
	return []*model.Game{{ID: "g1", Name: "Lotto Activo", Slug: "lotto-activo", Type: model.GameTypeAnimalitos, IsActive: true}}, nil
}

func newTestServer(t *testing.T, f *fakeEngine, imagesDir string) *httptest.Server {
	loc, err := time.LoadLocation("America/Caracas")
	require.NoError(t, err)

	h := New(Deps{
		Lifecycle:    f,
		Generator:    f,
		Publisher:    f,
		Draws:        f,
		Publications: f,
		Audit:        f,
		System:       f,
		Games:        f,
		Health:       func(context.Context) error { return f.err },
		Location:     loc,
		ImagesDir:    imagesDir,
	})
	h.now = func() time.Time { return time.Date(2025, time.December, 25, 2, 0, 0, 0, time.UTC) }

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Status int             `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestGenerate_DefaultsToLocalToday(t *testing.T) {
	f := newFakeEngine()
	srv := newTestServer(t, f, "")

	code, env := call(t, srv, http.MethodPost, "/api/v1/draws/generate", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.CalendarDate(2025, time.December, 24), f.genDate)
	assert.Contains(t, string(env.Data), `"created":3`)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/draws/generate", `{"date":"2025-12-31"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.CalendarDate(2025, time.December, 31), f.genDate)

	code, env = call(t, srv, http.MethodPost, "/api/v1/draws/generate", `{"date":"31/12/2025"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "Date")
}

func TestSweep(t *testing.T) {
	srv := newTestServer(t, newFakeEngine(), "")

	code, env := call(t, srv, http.MethodPost, "/api/v1/sweep", "")
	require.Equal(t, http.StatusOK, code)

	var res sweepResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.CloseDue.Closed)
	assert.Equal(t, 2, res.ProcessElapsed.Drawn)
}

func TestPreselect(t *testing.T) {
	f := newFakeEngine()
	f.draw("d1", model.StatusScheduled)
	f.draw("d2", model.StatusDrawn)
	srv := newTestServer(t, f, "")

	code, env := call(t, srv, http.MethodPost, "/api/v1/draws/d1/preselect", `{"itemId":"item-7"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"preselectedItemId":"item-7"`)

	code, env = call(t, srv, http.MethodPost, "/api/v1/draws/d1/preselect", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"preselectedItemId":"random-item"`)

	code, env = call(t, srv, http.MethodPost, "/api/v1/draws/d2/preselect", `{}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.Error, "invalid state transition")

	code, _ = call(t, srv, http.MethodPost, "/api/v1/draws/missing/preselect", `{}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestChangeWinner(t *testing.T) {
	f := newFakeEngine()
	f.draw("d1", model.StatusDrawn)
	srv := newTestServer(t, f, "")

	code, env := call(t, srv, http.MethodPost, "/api/v1/draws/d1/change-winner", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "field ItemID is required")

	code, _ = call(t, srv, http.MethodPost, "/api/v1/draws/d1/change-winner", `{"itemId":"foreign"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, env = call(t, srv, http.MethodPost, "/api/v1/draws/d1/change-winner", `{"itemId":"item-3"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"winnerItemId":"item-3"`)
}

func TestPublish(t *testing.T) {
	f := newFakeEngine()
	f.draw("d1", model.StatusDrawn)
	srv := newTestServer(t, f, "")

	code, _ := call(t, srv, http.MethodPost, "/api/v1/draws/d1/publish", `{"channelIds":["c1","c2"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"d1:c1,c2"}, f.published)

	f.err = service.ErrEmergencyStop
	code, _ = call(t, srv, http.MethodPost, "/api/v1/draws/d1/publish", ``)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	f.err = fmt.Errorf("failed to load draw: %w", assert.AnError)
	code, env := call(t, srv, http.MethodPost, "/api/v1/draws/d1/publish", ``)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", env.Error)
}

func TestCancel(t *testing.T) {
	f := newFakeEngine()
	f.draw("d1", model.StatusScheduled)
	srv := newTestServer(t, f, "")

	code, _ := call(t, srv, http.MethodPost, "/api/v1/draws/d1/cancel", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := call(t, srv, http.MethodPost, "/api/v1/draws/d1/cancel", `{"reason":"power outage"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"CANCELLED"`)
	assert.Contains(t, string(env.Data), `"notes":"power outage"`)
}

func TestCreateManual(t *testing.T) {
	srv := newTestServer(t, newFakeEngine(), "")

	code, env := call(t, srv, http.MethodPost, "/api/v1/draws", `{"gameId":"g1","date":"2025-12-24","time":"19:00"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Contains(t, string(env.Data), `"drawTime":"19:00:00"`)
	assert.Contains(t, string(env.Data), `"drawDate":"2025-12-24"`)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/draws", `{"gameId":"g1","date":"2025-12-24","time":"7pm"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestList_ParsesFilters(t *testing.T) {
	f := newFakeEngine()
	f.draw("d1", model.StatusScheduled)
	srv := newTestServer(t, f, "")

	code, _ := call(t, srv, http.MethodGet, "/api/v1/draws?date=2025-12-24&game=g1&status=scheduled,closed", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "g1", f.lastFilter.GameID)
	require.NotNil(t, f.lastFilter.DrawDate)
	assert.Equal(t, model.CalendarDate(2025, time.December, 24), *f.lastFilter.DrawDate)
	assert.Equal(t, []model.DrawStatus{model.StatusScheduled, model.StatusClosed}, f.lastFilter.Statuses)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/draws?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetAndPublications(t *testing.T) {
	f := newFakeEngine()
	f.draw("d1", model.StatusPublished)
	srv := newTestServer(t, f, "")

	code, _ := call(t, srv, http.MethodGet, "/api/v1/draws/d1", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/draws/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env := call(t, srv, http.MethodGet, "/api/v1/draws/d1/publications", "")
	require.Equal(t, http.StatusOK, code)
	var pubs []publicationView
	require.NoError(t, json.Unmarshal(env.Data, &pubs))
	require.Len(t, pubs, 2)
	assert.True(t, pubs[0].Success)
	assert.Equal(t, "timeout", *pubs[1].Error)

	code, env = call(t, srv, http.MethodGet, "/api/v1/draws/d1/audit", "")
	require.Equal(t, http.StatusOK, code)
	var trail []auditView
	require.NoError(t, json.Unmarshal(env.Data, &trail))
	require.Len(t, trail, 2)
	assert.Equal(t, model.AuditWinnerChanged, trail[0].Action)
	assert.Equal(t, "i2", trail[0].Changes["to"])
}

func TestEmergencyStopAndPauses(t *testing.T) {
	f := newFakeEngine()
	srv := newTestServer(t, f, "")

	code, _ := call(t, srv, http.MethodPost, "/api/v1/system/emergency-stop", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/system/emergency-stop", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "true", f.config[repository.KeyEmergencyStop])

	code, env := call(t, srv, http.MethodGet, "/api/v1/system/emergency-stop", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"enabled":true}`, string(env.Data))

	code, _ = call(t, srv, http.MethodPost, "/api/v1/pauses", `{"gameId":"g1","startDate":"2025-12-31","endDate":"2025-12-24"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/pauses", `{"gameId":"g1","startDate":"2025-12-24","endDate":"2025-12-26","reason":"holidays"}`)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, f.pauses, 1)
	assert.Equal(t, "holidays", *f.pauses[0].Reason)
	assert.True(t, f.pauses[0].IsActive)
}

func TestImagesAreServed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d1-07.png"), []byte("png"), 0o644))
	srv := newTestServer(t, newFakeEngine(), dir)

	resp, err := http.Get(srv.URL + "/images/d1-07.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthAndGames(t *testing.T) {
	f := newFakeEngine()
	srv := newTestServer(t, f, "")

	code, _ := call(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)

	code, env := call(t, srv, http.MethodGet, "/api/v1/games", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"slug":"lotto-activo"`)

	f.err = assert.AnError
	code, _ = call(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
