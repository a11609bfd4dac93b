package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

type fakeGuard struct {
	degraded bool
}

func (f fakeGuard) IsDegraded() bool {
	return f.degraded
}

func TestDatabaseCheck(t *testing.T) {
	c := Database(fakePinger{})
	if c.Degradable {
		t.Error("database check marked degradable, must be fatal")
	}
	if err := c.Probe(context.Background()); err != nil {
		t.Errorf("healthy database reported %v", err)
	}

	c = Database(fakePinger{err: errors.New("connection refused")})
	if err := c.Probe(context.Background()); err == nil {
		t.Error("unreachable database reported healthy")
	}
}

func TestRecordGuardCheck(t *testing.T) {
	c := RecordGuard(fakeGuard{})
	if !c.Degradable {
		t.Error("record guard check not degradable, would drop the instance from rotation")
	}
	if err := c.Probe(context.Background()); err != nil {
		t.Errorf("healthy guard reported %v", err)
	}

	c = RecordGuard(fakeGuard{degraded: true})
	if err := c.Probe(context.Background()); err == nil {
		t.Error("degraded guard reported healthy")
	}
}
