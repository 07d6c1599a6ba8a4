package confirm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRequired(t *testing.T) {
	tests := []struct {
		name      string
		planned   int
		threshold int
		assumeYes bool
		want      bool
	}{
		{"below threshold", 500, 1000, false, false},
		{"at threshold", 1000, 1000, false, false},
		{"above threshold", 1001, 1000, false, true},
		{"assume yes", 5000, 1000, true, false},
		{"threshold disabled", 5000, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Required(tt.planned, tt.threshold, tt.assumeYes); got != tt.want {
				t.Errorf("Required(%d, %d, %v) = %v, want %v", tt.planned, tt.threshold, tt.assumeYes, got, tt.want)
			}
		})
	}
}

func TestModelKeys(t *testing.T) {
	tests := []struct {
		name     string
		msgs     []tea.Msg
		accepted bool
	}{
		{"y accepts", []tea.Msg{runes("y")}, true},
		{"n declines", []tea.Msg{runes("n")}, false},
		{"esc declines", []tea.Msg{tea.KeyMsg{Type: tea.KeyEsc}}, false},
		{"enter defaults to no", []tea.Msg{tea.KeyMsg{Type: tea.KeyEnter}}, false},
		{"toggle then enter accepts", []tea.Msg{tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyEnter}}, true},
		{"double toggle returns to no", []tea.Msg{tea.KeyMsg{Type: tea.KeyTab}, tea.KeyMsg{Type: tea.KeyTab}, tea.KeyMsg{Type: tea.KeyEnter}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m tea.Model = newModel(Prompt{Title: "Large run"})
			var cmd tea.Cmd
			for _, msg := range tt.msgs {
				m, cmd = m.Update(msg)
			}
			final := m.(model)
			if !final.done {
				t.Fatalf("expected prompt to finish")
			}
			if cmd == nil {
				t.Fatalf("expected quit command")
			}
			if final.accepted != tt.accepted {
				t.Errorf("accepted = %v, want %v", final.accepted, tt.accepted)
			}
		})
	}
}

func TestModelIgnoresOtherKeys(t *testing.T) {
	m, cmd := newModel(Prompt{}).Update(runes("x"))
	if cmd != nil {
		t.Fatalf("expected no command for unbound key")
	}
	if m.(model).done {
		t.Fatalf("unbound key should not finish the prompt")
	}
}

func TestModelView(t *testing.T) {
	m := newModel(Prompt{
		Title:   "This run plans 3000 requests",
		Details: []string{"Target: http://localhost:5000/call-tornado"},
	})
	view := m.View()
	for _, want := range []string{"This run plans 3000 requests", "Target: http://localhost:5000/call-tornado", "Yes", "No", "enter"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	done, _ := m.Update(runes("n"))
	if got := done.View(); got != "" {
		t.Errorf("finished prompt should render nothing, got %q", got)
	}
}

func TestAskNonTerminalAborts(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	err = Ask(context.Background(), f, io.Discard, Prompt{Title: "Large run"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestAskReadsAnswer(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"y", false},
		{"n", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var out bytes.Buffer
			err := ask(ctx, strings.NewReader(tt.input), &out, Prompt{Title: "Large run"})
			if tt.wantErr {
				if !errors.Is(err, ErrAborted) {
					t.Fatalf("expected ErrAborted, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected acceptance, got %v", err)
			}
		})
	}
}

func TestAskCanceledContextAborts(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ask(ctx, pr, io.Discard, Prompt{Title: "Large run"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}
