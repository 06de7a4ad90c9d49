package model

import "time"

// ResultCard bundles what a result announcement needs: the draw, its game and winner.
type ResultCard struct {
	Game     *Game
	Draw     *Draw
	Winner   *GameItem
	Location *time.Location
}

// LocalScheduledAt returns the draw instant in the operating location.
func (c *ResultCard) LocalScheduledAt() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return c.Draw.ScheduledAt.In(loc)
}

// WinnerNumberPadded returns the winning number padded to the game's digit width.
func (c *ResultCard) WinnerNumberPadded() string {
	if c.Winner == nil {
		return ""
	}
	width := 2
	if c.Game != nil {
		width = c.Game.Type.DigitWidth()
	}
	return PadNumber(c.Winner.Number, width)
}
