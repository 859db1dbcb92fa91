package app

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/client"
)

// StatusMsg carries a connection state change.
type StatusMsg struct{ State client.State }

// ToastMsg asks the UI to show a toast.
type ToastMsg struct{ Toast client.Toast }

// CounterMsg carries the new received count.
type CounterMsg struct{ N int }

// Bridge is a client.Renderer that forwards every call into a bubbletea
// program as a message. Calls made before SetProgram are dropped; the
// model reads the initial state itself.
type Bridge struct {
	program atomic.Pointer[tea.Program]
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// SetProgram routes later calls to p. Safe to call from any goroutine.
func (b *Bridge) SetProgram(p *tea.Program) {
	b.program.Store(p)
}

func (b *Bridge) send(msg tea.Msg) {
	if p := b.program.Load(); p != nil {
		p.Send(msg)
	}
}

func (b *Bridge) Status(s client.State) { b.send(StatusMsg{State: s}) }
func (b *Bridge) Toast(t client.Toast)  { b.send(ToastMsg{Toast: t}) }
func (b *Bridge) Counter(n int)         { b.send(CounterMsg{N: n}) }
