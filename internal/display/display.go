// Package display renders short status lines for the operator.
package display

import (
	"github.com/rs/zerolog/log"

	"github.com/sweeney/aircon-guard/internal/logic"
)

// Renderer shows a line of text. Rendering is fire-and-forget.
type Renderer interface {
	Render(text string)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(text string)

// Render calls f.
func (f RendererFunc) Render(text string) { f(text) }

// Screen forwards text to a renderer, skipping text that is already shown.
type Screen struct {
	r    Renderer
	text string
}

// NewScreen returns a Screen drawing on r.
func NewScreen(r Renderer) *Screen {
	return &Screen{r: r}
}

// Show renders st unless its text is already on screen. A status the monitor
// reports as clean is still redrawn when something else was printed over it.
func (s *Screen) Show(st logic.Status) {
	s.Print(st.Text)
}

// Print renders text unless it is already on screen.
func (s *Screen) Print(text string) {
	if text == s.text {
		return
	}
	s.text = text
	s.r.Render(text)
}

// Text returns what is currently on screen.
func (s *Screen) Text() string {
	return s.text
}

// Log renders to the structured log.
type Log struct{}

// Render logs text.
func (Log) Render(text string) {
	log.Info().Str("display", text).Msg("status")
}

// Tee renders to every renderer in order.
type Tee []Renderer

// Render forwards text to each renderer.
func (t Tee) Render(text string) {
	for _, r := range t {
		r.Render(text)
	}
}

// Recorder keeps every rendered line. Used in tests.
type Recorder struct {
	Lines []string
}

// Render records text.
func (r *Recorder) Render(text string) {
	r.Lines = append(r.Lines, text)
}
