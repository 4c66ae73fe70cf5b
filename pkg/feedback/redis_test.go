package feedback

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *RedisPersister {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisPersister(rdb)
}

func TestRedisPersisterRoundTrip(t *testing.T) {
	p := newTestRedis(t)
	ctx := context.Background()

	in := State{
		EvaluatedMessages: 120,
		FunnelDetections:  7,
		UserMarkedSamples: 3,
		UserMarkedLegit:   1,
		UserMarkedScam:    2,
	}
	if err := p.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestRedisPersisterMissingKey(t *testing.T) {
	p := newTestRedis(t)

	state, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("a missing key is a fresh state, got %v", err)
	}
	if state != (State{}) {
		t.Fatalf("state = %+v, want zero", state)
	}
}
