package storage

import (
	"context"
	"fmt"
)

// Scope is one transaction scope: the outer transaction (level 0) or a
// named savepoint layered on it. Only the scope on top of the stack
// may commit or roll back; closing out of order is a discipline error
// that rolls back the whole transaction.
type Scope struct {
	c     *Conn
	level int
	name  string
	done  bool
}

// Begin starts the outer transaction, or pushes a named savepoint when
// one is already open.
func (c *Conn) Begin(ctx context.Context) (*Scope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	if c.tx == nil {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin: %w", err)
		}
		c.tx = tx
		c.svpSeq = 0
		c.metrics.TxBegin.Inc(1)
		c.log.Debug("BEGIN")
		return &Scope{c: c, level: 0}, nil
	}
	d, err := c.dialectLocked(ctx)
	if err != nil {
		return nil, err
	}
	if !d.Has(CapSavepoints) {
		return nil, ErrNoSavepoints
	}
	// Monotonic within the outer transaction, so a name popped by a
	// rollback or release is never reissued.
	c.svpSeq++
	name := fmt.Sprintf("svp_%d", c.svpSeq)
	if _, err := c.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("savepoint %s: %w", name, err)
	}
	c.savepoints = append(c.savepoints, name)
	c.metrics.SavepointOp.Inc(1)
	c.log.WithField("savepoint", name).Debug("SAVEPOINT")
	return &Scope{c: c, level: len(c.savepoints), name: name}, nil
}

// Commit commits the outer transaction, or releases this scope's
// savepoint: its changes become part of the enclosing scope, not yet
// durable.
func (s *Scope) Commit() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.done {
		return ErrFinished
	}
	if err := s.check("commit"); err != nil {
		return err
	}
	s.done = true
	c := s.c
	if s.level == 0 {
		err := c.tx.Commit()
		c.tx = nil
		c.savepoints = nil
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		c.metrics.TxCommit.Inc(1)
		c.log.Debug("COMMIT")
		return nil
	}
	if _, err := c.tx.Exec("RELEASE SAVEPOINT " + s.name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", s.name, err)
	}
	c.savepoints = c.savepoints[:len(c.savepoints)-1]
	c.metrics.SavepointOp.Inc(1)
	c.log.WithField("savepoint", s.name).Debug("RELEASE SAVEPOINT")
	return nil
}

// Rollback rolls back the outer transaction, or rolls back to this
// scope's savepoint only; the enclosing scope stays open.
func (s *Scope) Rollback() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.done {
		return ErrFinished
	}
	if err := s.check("rollback"); err != nil {
		return err
	}
	s.done = true
	c := s.c
	if s.level == 0 {
		err := c.tx.Rollback()
		c.tx = nil
		c.savepoints = nil
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		c.metrics.TxRollback.Inc(1)
		c.log.Debug("ROLLBACK")
		return nil
	}
	if _, err := c.tx.Exec("ROLLBACK TO SAVEPOINT " + s.name); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", s.name, err)
	}
	c.savepoints = c.savepoints[:len(c.savepoints)-1]
	c.metrics.SavepointOp.Inc(1)
	c.log.WithField("savepoint", s.name).Debug("ROLLBACK TO SAVEPOINT")
	return nil
}

// check enforces the exactly-once discipline: only the top of the
// stack closes. A violation is fatal to the transaction; the outer
// transaction is rolled back before the error is returned.
func (s *Scope) check(op string) error {
	c := s.c
	if c.tx == nil {
		return ErrNotInTransaction
	}
	depth := len(c.savepoints)
	if s.level == depth {
		return nil
	}
	c.tx.Rollback()
	c.tx = nil
	c.savepoints = nil
	c.metrics.TxRollback.Inc(1)
	c.log.WithField("op", op).Error("transaction closed out of order, rolled back")
	return &TransactionDisciplineError{Op: op, Level: s.level, Depth: depth}
}

// Close rolls the scope back if it has not been committed or rolled
// back yet. Intended for defer, so a scope is released even when the
// body panics before committing.
func (s *Scope) Close() {
	s.c.mu.Lock()
	done := s.done
	s.c.mu.Unlock()
	if !done {
		s.Rollback()
	}
}

// Transaction runs body inside a scope. A nil return commits; an error
// rolls back that scope (and only that scope) and is returned
// unchanged, so callers can tell business failure from storage
// failure. A panic rolls back and re-panics.
func (c *Conn) Transaction(ctx context.Context, body func(ctx context.Context, s *Scope) error) error {
	s, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			s.Close()
			panic(r)
		}
	}()
	if err := body(ctx, s); err != nil {
		if rberr := s.Rollback(); rberr != nil && rberr != ErrFinished {
			c.log.WithError(rberr).Warn("rollback after body failure")
		}
		return err
	}
	return s.Commit()
}
