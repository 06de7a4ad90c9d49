package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
)

// ImageConfig sets where result images are written and served from.
type ImageConfig struct {
	Dir           string
	PublicBaseURL string
	Width         int
	Height        int
}

// Images renders result cards as PNG files.
type Images struct {
	cfg ImageConfig
}

// NewImages creates an image renderer writing into cfg.Dir.
func NewImages(cfg ImageConfig) (*Images, error) {
	if cfg.Dir == "" {
		return nil, errors.New("image directory is required")
	}
	if cfg.Width <= 0 {
		cfg.Width = 1080
	}
	if cfg.Height <= 0 {
		cfg.Height = 1080
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Images{cfg: cfg}, nil
}

// FileName is the image file of a draw with its current winner. A changed
// winner yields a new file.
func FileName(card *model.ResultCard) string {
	return fmt.Sprintf("%s-%s.png", card.Draw.ID, card.WinnerNumberPadded())
}

// Image renders the result image of card unless it already exists and
// returns its local path and public URL.
func (r *Images) Image(ctx context.Context, card *model.ResultCard) (string, string, error) {
	if card.Winner == nil {
		return "", "", errors.New("draw has no winner")
	}
	name := FileName(card)
	path := filepath.Join(r.cfg.Dir, name)

	if _, err := os.Stat(path); err == nil {
		return path, r.publicURL(name), nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", "", fmt.Errorf("failed to stat image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if err := r.draw(card, path); err != nil {
		return "", "", err
	}

	log.Info().Str("draw_id", card.Draw.ID).Str("path", path).Msg("Result image rendered")
	return path, r.publicURL(name), nil
}

func (r *Images) draw(card *model.ResultCard, path string) error {
	w, h := float64(r.cfg.Width), float64(r.cfg.Height)
	dc := gg.NewContext(r.cfg.Width, r.cfg.Height)

	dc.SetRGB(0.05, 0.18, 0.12)
	dc.Clear()

	dc.SetRGB(0.98, 0.80, 0.15)
	dc.DrawRoundedRectangle(w*0.08, h*0.08, w*0.84, h*0.84, w*0.04)
	dc.SetLineWidth(w * 0.012)
	dc.Stroke()

	data := Data(card, "")
	lines := []struct {
		text  string
		y     float64
		scale float64
	}{
		{strings.ToUpper(card.Game.Name), 0.22, 5},
		{fmt.Sprintf("%s  %s", data["dateShort"], data["time12"]), 0.34, 3},
		{card.WinnerNumberPadded(), 0.56, 14},
		{strings.ToUpper(card.Winner.Name), 0.76, 5},
	}

	dc.SetRGB(1, 1, 1)
	for _, l := range lines {
		// the built-in face is small; scale it around the anchor point
		scale := l.scale * w / 1080
		dc.Push()
		dc.ScaleAbout(scale, scale, w/2, h*l.y)
		dc.DrawStringAnchored(l.text, w/2, h*l.y, 0.5, 0.5)
		dc.Pop()
	}

	tmp := path + ".tmp"
	if err := dc.SavePNG(tmp); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move image into place: %w", err)
	}
	return nil
}

func (r *Images) publicURL(name string) string {
	if r.cfg.PublicBaseURL == "" {
		return ""
	}
	u, err := url.JoinPath(r.cfg.PublicBaseURL, name)
	if err != nil {
		return strings.TrimRight(r.cfg.PublicBaseURL, "/") + "/" + name
	}
	return u
}
