package broker

import (
	"context"
	"sync"
)

// Group runs a set of consumers that share a connection and a pause gate.
type Group struct {
	conn      *Connection
	gate      *Gate
	consumers []*Consumer
	wg        sync.WaitGroup
}

func NewGroup(conn *Connection, gate *Gate, consumers ...*Consumer) *Group {
	return &Group{conn: conn, gate: gate, consumers: consumers}
}

func (g *Group) Start(ctx context.Context) {
	for _, c := range g.consumers {
		g.wg.Add(1)
		go func(c *Consumer) {
			defer g.wg.Done()
			c.Run(ctx)
		}(c)
	}
}

// Wait blocks until every consumer returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

func (g *Group) Pause() { g.gate.Pause() }
func (g *Group) Resume() { g.gate.Resume() }

func (g *Group) Paused() bool { return g.gate.Paused() }

func (g *Group) Connected() bool {
	return g.conn != nil && g.conn.IsOpen()
}

func (g *Group) Stats() []Stats {
	stats := make([]Stats, 0, len(g.consumers))
	for _, c := range g.consumers {
		stats = append(stats, c.Stats())
	}
	return stats
}

func (g *Group) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}
