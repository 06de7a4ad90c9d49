// Package model defines the data models for the draw engine.
package model

import "time"

// GameType determines the item universe of a game and the padding of its numbers.
type GameType string

// Game types.
const (
	GameTypeAnimalitos GameType = "ANIMALITOS" // 38 animals, "00".."37"
	GameTypeRoulette   GameType = "ROULETTE"   // 37 numbers
	GameTypeTriple     GameType = "TRIPLE"     // "000".."999"
)

// DigitWidth returns how many digits a winning number is padded to.
func (t GameType) DigitWidth() int {
	if t == GameTypeTriple {
		return 3
	}
	return 2
}

// Game is a lottery product owning items, templates and channels.
type Game struct {
	ID       string   `db:"id"`
	Name     string   `db:"name"`
	Slug     string   `db:"slug"`
	Type     GameType `db:"type"`
	IsActive bool     `db:"is_active"`
}

// GameItem is one possible outcome of a game. Immutable reference data.
type GameItem struct {
	ID           string  `db:"id"`
	GameID       string  `db:"game_id"`
	Number       string  `db:"number"`
	Name         string  `db:"name"`
	Multiplier   float64 `db:"multiplier"`
	DisplayOrder int     `db:"display_order"`
	IsActive     bool    `db:"is_active"`
}

// DrawTemplate is a recurring rule producing draws on given weekdays and times.
type DrawTemplate struct {
	ID         string    `db:"id"`
	GameID     string    `db:"game_id"`
	Name       string    `db:"name"`
	DaysOfWeek []int     `db:"days_of_week"` // 1 = Monday ... 7 = Sunday
	DrawTimes  []string  `db:"draw_times"`   // HH:MM:SS
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// RunsOn reports whether the template generates draws on the ISO weekday.
func (t *DrawTemplate) RunsOn(weekday int) bool {
	for _, d := range t.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

// Draw is one scheduled instance of a game's lottery event.
type Draw struct {
	ID                 string         `db:"id"`
	GameID             string         `db:"game_id"`
	TemplateID         *string        `db:"template_id"`
	DrawDate           time.Time      `db:"draw_date"` // calendar date, midnight UTC
	DrawTime           string         `db:"draw_time"` // HH:MM:SS
	ScheduledAt        time.Time      `db:"scheduled_at"`
	Status             DrawStatus     `db:"status"`
	PreselectedItemID  *string        `db:"preselected_item_id"`
	PreselectionSource *OutcomeSource `db:"preselection_source"`
	WinnerItemID       *string        `db:"winner_item_id"`
	ImageURL           *string        `db:"image_url"`
	ClosedAt           *time.Time     `db:"closed_at"`
	DrawnAt            *time.Time     `db:"drawn_at"`
	PublishedAt        *time.Time     `db:"published_at"`
	Notes              *string        `db:"notes"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

// DrawDateString returns the draw date as YYYY-MM-DD.
func (d *Draw) DrawDateString() string {
	return d.DrawDate.Format(DateLayout)
}

// DrawPatch lists the columns a status-guarded update may change.
// Nil fields are left untouched.
type DrawPatch struct {
	Status             *DrawStatus
	PreselectedItemID  *string
	PreselectionSource *OutcomeSource
	WinnerItemID       *string
	ImageURL           *string
	ClosedAt           *time.Time
	DrawnAt            *time.Time
	PublishedAt        *time.Time
	Notes              *string

	// IfWinnerItemID additionally requires the stored winner to match.
	IfWinnerItemID *string
}

// DrawFilter selects draws. Zero values are ignored.
type DrawFilter struct {
	GameID         string
	Statuses       []DrawStatus
	DrawDate       *time.Time
	DrawTime       string
	ScheduledFrom  *time.Time
	ScheduledTo    *time.Time
	Unpublished    bool
	DrawnSince     *time.Time
	OrderByDrawnAt bool
	Limit          int
}

// DrawPause suspends generation of a game's draws between two dates (inclusive).
type DrawPause struct {
	ID        string    `db:"id"`
	GameID    string    `db:"game_id"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	Reason    *string   `db:"reason"`
	IsActive  bool      `db:"is_active"`
}

// AuditLog records a critical operation.
type AuditLog struct {
	ID        int64          `db:"id"`
	Action    string         `db:"action"`
	Entity    string         `db:"entity"`
	EntityID  string         `db:"entity_id"`
	Changes   map[string]any `db:"changes"`
	Actor     string         `db:"actor"`
	CreatedAt time.Time      `db:"created_at"`
}

// Audit actions.
const (
	AuditDrawsGenerated  = "DRAWS_GENERATED"
	AuditDrawCreated     = "DRAW_CREATED"
	AuditDrawClosed      = "DRAW_CLOSED"
	AuditDrawExecuted    = "DRAW_EXECUTED"
	AuditDrawPreselected = "DRAW_PRESELECTED"
	AuditWinnerChanged   = "WINNER_CHANGED"
	AuditDrawCancelled   = "DRAW_CANCELLED"
	AuditDrawPublished   = "DRAW_PUBLISHED"
)

// Audited entities.
const (
	EntityDraw  = "draw"
	EntityDraws = "draws"
)

// Actors recorded in the audit log.
const (
	ActorSystem   = "system"
	ActorOperator = "operator"
)

// DateLayout and TimeLayout are the canonical draw date/time formats.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)
