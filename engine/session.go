package engine

import (
	"context"
	"iter"
)

// Session is one open-document exchange with the engine. It is only valid
// inside the function passed to Client.Do and must not be retained.
type Session struct {
	client *Client
	conn   Conn
	opened bool
	lost   bool
}

// Load opens data as the session document.
func (s *Session) Load(ctx context.Context, data []byte, filter string, readOnly bool) error {
	// Marked before the call: a failed load may still leave engine state behind.
	s.opened = true
	s.client.metrics.IncEngineSession()
	err := s.conn.Load(ctx, data, filter, readOnly)
	s.client.observe(s, err)
	return err
}

// Append inserts docs at the end of the session document.
func (s *Session) Append(ctx context.Context, docs iter.Seq2[[]byte, error], filter string) error {
	err := s.conn.Append(ctx, docs, filter)
	s.client.observe(s, err)
	return err
}

// SaveAs exports the session document.
func (s *Session) SaveAs(ctx context.Context, filter string) ([]byte, error) {
	data, err := s.conn.SaveAs(ctx, filter)
	s.client.observe(s, err)
	return data, err
}
