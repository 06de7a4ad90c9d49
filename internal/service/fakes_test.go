package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"draw-engine/internal/model"
	"draw-engine/internal/pkg/lock"
	"draw-engine/internal/repository"
)

// memDraws is an in-memory DrawStore honouring the status guard.
type memDraws struct {
	mu          sync.Mutex
	draws       map[string]*model.Draw
	transitions map[string]int // "id:FROM->TO" -> applied count
	failCreate  func(d *model.Draw) error
}

func newMemDraws() *memDraws {
	return &memDraws{draws: map[string]*model.Draw{}, transitions: map[string]int{}}
}

func cloneDraw(d *model.Draw) *model.Draw {
	c := *d
	return &c
}

func (m *memDraws) Create(_ context.Context, d *model.Draw) (*model.Draw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		if err := m.failCreate(d); err != nil {
			return nil, err
		}
	}
	for _, existing := range m.draws {
		if existing.GameID == d.GameID && existing.DrawDate.Equal(d.DrawDate) && existing.DrawTime == d.DrawTime {
			return nil, repository.ErrDuplicateDraw
		}
	}
	c := cloneDraw(d)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusScheduled
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.draws[c.ID] = c
	return cloneDraw(c), nil
}

func (m *memDraws) put(d *model.Draw) *model.Draw {
	created, err := m.Create(context.Background(), d)
	if err != nil {
		panic(err)
	}
	return created
}

func (m *memDraws) GetByID(_ context.Context, id string) (*model.Draw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.draws[id]
	if !ok {
		return nil, repository.ErrDrawNotFound
	}
	return cloneDraw(d), nil
}

func (m *memDraws) get(id string) *model.Draw {
	d, err := m.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return d
}

func (m *memDraws) FindMany(_ context.Context, f model.DrawFilter) ([]*model.Draw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Draw
	for _, d := range m.draws {
		if f.GameID != "" && d.GameID != f.GameID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, d.Status) {
			continue
		}
		if f.DrawDate != nil && !d.DrawDate.Equal(*f.DrawDate) {
			continue
		}
		if f.DrawTime != "" && d.DrawTime != f.DrawTime {
			continue
		}
		if f.ScheduledFrom != nil && d.ScheduledAt.Before(*f.ScheduledFrom) {
			continue
		}
		if f.ScheduledTo != nil && d.ScheduledAt.After(*f.ScheduledTo) {
			continue
		}
		if f.DrawnSince != nil && (d.DrawnAt == nil || d.DrawnAt.Before(*f.DrawnSince)) {
			continue
		}
		if f.Unpublished && d.PublishedAt != nil {
			continue
		}
		out = append(out, cloneDraw(d))
	}

	sort.Slice(out, func(i, j int) bool {
		if f.OrderByDrawnAt && out[i].DrawnAt != nil && out[j].DrawnAt != nil {
			return out[i].DrawnAt.Before(*out[j].DrawnAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memDraws) Update(_ context.Context, id string, expected model.DrawStatus, p model.DrawPatch) (*model.Draw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.draws[id]
	if !ok {
		return nil, repository.ErrDrawNotFound
	}
	if d.Status != expected {
		return nil, repository.ErrStaleStatus
	}
	if p.IfWinnerItemID != nil && (d.WinnerItemID == nil || *d.WinnerItemID != *p.IfWinnerItemID) {
		return nil, repository.ErrStaleStatus
	}

	if p.Status != nil {
		m.transitions[fmt.Sprintf("%s:%s->%s", id, d.Status, *p.Status)]++
		d.Status = *p.Status
	}
	if p.PreselectedItemID != nil {
		v := *p.PreselectedItemID
		d.PreselectedItemID = &v
	}
	if p.PreselectionSource != nil {
		v := *p.PreselectionSource
		d.PreselectionSource = &v
	}
	if p.WinnerItemID != nil {
		v := *p.WinnerItemID
		d.WinnerItemID = &v
	}
	if p.ImageURL != nil {
		v := *p.ImageURL
		d.ImageURL = &v
	}
	if p.ClosedAt != nil {
		v := *p.ClosedAt
		d.ClosedAt = &v
	}
	if p.DrawnAt != nil {
		v := *p.DrawnAt
		d.DrawnAt = &v
	}
	if p.PublishedAt != nil {
		v := *p.PublishedAt
		d.PublishedAt = &v
	}
	if p.Notes != nil {
		v := *p.Notes
		d.Notes = &v
	}
	d.UpdatedAt = time.Now()
	return cloneDraw(d), nil
}

func (m *memDraws) UsedItemsOn(_ context.Context, gameID string, date time.Time, exclude string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, d := range m.draws {
		if d.GameID == gameID && d.DrawDate.Equal(date) && d.ID != exclude &&
			d.PreselectedItemID != nil && d.Status != model.StatusCancelled {
			out = append(out, *d.PreselectedItemID)
		}
	}
	return out, nil
}

func (m *memDraws) transitionCount(id string, from, to model.DrawStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions[fmt.Sprintf("%s:%s->%s", id, from, to)]
}

func (m *memDraws) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.draws)
}

func containsStatus(list []model.DrawStatus, s model.DrawStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// memCatalog serves games and items from maps.
type memCatalog struct {
	games map[string]*model.Game
	items map[string]*model.GameItem
}

func newMemCatalog() *memCatalog {
	return &memCatalog{games: map[string]*model.Game{}, items: map[string]*model.GameItem{}}
}

// addGame registers a game with n active items numbered from 0.
func (c *memCatalog) addGame(name string, typ model.GameType, n int) *model.Game {
	g := &model.Game{ID: uuid.NewString(), Name: name, Slug: name, Type: typ, IsActive: true}
	c.games[g.ID] = g
	for i := 0; i < n; i++ {
		it := &model.GameItem{
			ID:           uuid.NewString(),
			GameID:       g.ID,
			Number:       model.PadNumber(fmt.Sprint(i), typ.DigitWidth()),
			Name:         fmt.Sprintf("Item %d", i),
			Multiplier:   30,
			DisplayOrder: i,
			IsActive:     true,
		}
		c.items[it.ID] = it
	}
	return g
}

func (c *memCatalog) Game(_ context.Context, id string) (*model.Game, error) {
	g, ok := c.games[id]
	if !ok {
		return nil, repository.ErrGameNotFound
	}
	return g, nil
}

func (c *memCatalog) Item(_ context.Context, id string) (*model.GameItem, error) {
	it, ok := c.items[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	return it, nil
}

func (c *memCatalog) ActiveItems(_ context.Context, gameID string) ([]*model.GameItem, error) {
	var out []*model.GameItem
	for _, it := range c.items {
		if it.GameID == gameID && it.IsActive {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

// memTemplates is a fixed TemplateStore.
type memTemplates struct {
	templates []*model.DrawTemplate
}

func (m *memTemplates) FindActiveForDay(_ context.Context, weekday int) ([]*model.DrawTemplate, error) {
	var out []*model.DrawTemplate
	for _, t := range m.templates {
		if t.IsActive && t.RunsOn(weekday) {
			out = append(out, t)
		}
	}
	return out, nil
}

// memSystem holds pauses and the emergency stop flag.
type memSystem struct {
	paused map[string]bool
	stop   atomic.Bool
}

func (m *memSystem) IsPaused(_ context.Context, gameID string, _ time.Time) (bool, error) {
	return m.paused[gameID], nil
}

func (m *memSystem) EmergencyStop(context.Context) (bool, error) {
	return m.stop.Load(), nil
}

// memAudit collects audit entries.
type memAudit struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (m *memAudit) Record(_ context.Context, e *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func (m *memAudit) last(action string) *model.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Action == action {
			return m.entries[i]
		}
	}
	return nil
}

// recNotifier records events.
type recNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recNotifier) Notify(_ context.Context, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recNotifier) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

// fakeChannel is a Channel with a programmable send.
type fakeChannel struct {
	id, name string
	typ      model.ChannelType
	template string
	send     func(ctx context.Context, c model.Content) error

	mu   sync.Mutex
	sent []model.Content
}

func newFakeChannel(name string, typ model.ChannelType) *fakeChannel {
	return &fakeChannel{id: uuid.NewString(), name: name, typ: typ, template: "{{gameName}} {{time}} {{winnerNumberPadded}} {{winnerName}}"}
}

func (f *fakeChannel) ID() string              { return f.id }
func (f *fakeChannel) Type() model.ChannelType { return f.typ }
func (f *fakeChannel) Name() string            { return f.name }
func (f *fakeChannel) MessageTemplate() string { return f.template }

func (f *fakeChannel) Send(ctx context.Context, c model.Content) error {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	f.mu.Unlock()
	if f.send != nil {
		return f.send(ctx, c)
	}
	return nil
}

func (f *fakeChannel) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// memRegistry maps games to channels.
type memRegistry struct {
	byGame map[string][]Channel
}

func (r *memRegistry) FindActiveChannelsForGame(_ context.Context, gameID string) ([]Channel, error) {
	return r.byGame[gameID], nil
}

// memPublications is an append-only PublicationStore.
type memPublications struct {
	mu   sync.Mutex
	rows []*model.Publication
	seq  int64
}

func (m *memPublications) Append(_ context.Context, p *model.Publication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c := *p
	c.ID = m.seq
	c.CreatedAt = time.Now()
	m.rows = append(m.rows, &c)
	return nil
}

func (m *memPublications) ListByDraw(_ context.Context, drawID string) ([]*model.Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Publication
	for _, r := range m.rows {
		if r.DrawID == drawID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memPublications) AttemptsByChannel(ctx context.Context, drawID string) ([]model.ChannelAttempts, error) {
	rows, _ := m.ListByDraw(ctx, drawID)
	byChannel := map[string]*model.ChannelAttempts{}
	var order []string
	for _, r := range rows {
		a, ok := byChannel[r.ChannelID]
		if !ok {
			a = &model.ChannelAttempts{ChannelID: r.ChannelID}
			byChannel[r.ChannelID] = a
			order = append(order, r.ChannelID)
		}
		a.Attempts++
		a.LastSuccess = r.Success
	}
	out := make([]model.ChannelAttempts, 0, len(order))
	for _, id := range order {
		out = append(out, *byChannel[id])
	}
	return out, nil
}

// textMessages renders a fixed summary line.
type textMessages struct{}

func (textMessages) Message(_ string, card *model.ResultCard, channelName string) (string, error) {
	return fmt.Sprintf("%s %s %s %s", channelName, card.Game.Name, card.WinnerNumberPadded(), card.Winner.Name), nil
}

// stubImages returns a fixed image or an error.
type stubImages struct {
	err   error
	calls atomic.Int32
}

func (s *stubImages) Image(_ context.Context, card *model.ResultCard) (string, string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", "", s.err
	}
	return "/tmp/" + card.Draw.ID + ".png", "https://cdn.example/" + card.Draw.ID + ".png", nil
}

var errSendRefused = errors.New("send refused")

// harness wires the services over in-memory collaborators.
type harness struct {
	draws     *memDraws
	catalog   *memCatalog
	templates *memTemplates
	system    *memSystem
	audit     *memAudit
	notifier  *recNotifier
	registry  *memRegistry
	pubs      *memPublications
	images    *stubImages

	generator *GeneratorService
	lifecycle *LifecycleService
	publisher *PublisherService
	caracas   *time.Location
}

func newHarness(cfg LifecycleConfig, pcfg PublisherConfig) *harness {
	caracas, err := time.LoadLocation("America/Caracas")
	if err != nil {
		panic(err)
	}
	if cfg.Location == nil {
		cfg.Location = caracas
	}
	if pcfg.Location == nil {
		pcfg.Location = caracas
	}

	h := &harness{
		draws:     newMemDraws(),
		catalog:   newMemCatalog(),
		templates: &memTemplates{},
		system:    &memSystem{paused: map[string]bool{}},
		audit:     &memAudit{},
		notifier:  &recNotifier{},
		registry:  &memRegistry{byGame: map[string][]Channel{}},
		pubs:      &memPublications{},
		images:    &stubImages{},
		caracas:   caracas,
	}

	machine, err := NewDrawMachine()
	if err != nil {
		panic(err)
	}
	locks := lock.NewKeyLock()

	h.generator = NewGeneratorService(h.templates, h.draws, h.system, h.audit, h.notifier, caracas)
	h.lifecycle = NewLifecycleService(h.draws, h.catalog, h.system, h.audit, h.notifier, machine, locks, cfg)
	h.publisher = NewPublisherService(
		h.draws, h.catalog, h.registry, h.pubs, h.lifecycle,
		textMessages{}, h.images, h.system, h.notifier, locks, pcfg,
	)
	return h
}

// scheduled inserts a SCHEDULED draw of game at date/time in Caracas.
func (h *harness) scheduled(game *model.Game, date time.Time, drawTime string) *model.Draw {
	at, err := model.ScheduledInstant(date, drawTime, h.caracas)
	if err != nil {
		panic(err)
	}
	return h.draws.put(&model.Draw{
		GameID:      game.ID,
		DrawDate:    date,
		DrawTime:    drawTime,
		ScheduledAt: at,
		Status:      model.StatusScheduled,
	})
}

// drawn drives a fresh draw to DRAWN through the lifecycle.
func (h *harness) drawn(game *model.Game, date time.Time, drawTime string) *model.Draw {
	d := h.scheduled(game, date, drawTime)
	ctx := context.Background()
	if _, err := h.lifecycle.Close(ctx, d.ID); err != nil {
		panic(err)
	}
	out, err := h.lifecycle.Draw(ctx, d.ID)
	if err != nil {
		panic(err)
	}
	return out
}

func (h *harness) itemsOf(gameID string) map[string]*model.GameItem {
	items, _ := h.catalog.ActiveItems(context.Background(), gameID)
	out := make(map[string]*model.GameItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}
