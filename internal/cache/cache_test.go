package cache

import (
	"context"
	"testing"
	"time"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCache_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache("test")

	if err := c.SetJSON(ctx, "a", doc{Name: "x", Count: 2}, time.Minute); err != nil {
		t.Fatal(err)
	}
	var got doc
	hit, err := c.GetJSON(ctx, "a", &got)
	if err != nil || !hit || got.Count != 2 {
		t.Fatalf("hit=%v err=%v got=%+v", hit, err, got)
	}

	_ = c.Del(ctx, "a")
	if hit, _ := c.GetJSON(ctx, "a", &got); hit {
		t.Fatal("expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache("")
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	_ = c.SetJSON(ctx, "k", doc{Name: "v"}, time.Second)
	now = now.Add(999 * time.Millisecond)
	var got doc
	if hit, _ := c.GetJSON(ctx, "k", &got); !hit {
		t.Fatal("expired too early")
	}
	now = now.Add(time.Millisecond)
	if hit, _ := c.GetJSON(ctx, "k", &got); hit {
		t.Fatal("expected expiry at ttl")
	}
}

func TestMemoryCache_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	items := map[string]memItem{}
	a := &MemoryCache{ns: "a", items: items, now: time.Now}
	b := &MemoryCache{ns: "b", items: items, now: time.Now}

	_ = a.SetJSON(ctx, "k", doc{Name: "from-a"}, 0)
	var got doc
	if hit, _ := b.GetJSON(ctx, "k", &got); hit {
		t.Fatal("namespace b saw a's key")
	}
	if _, ok := items["a:k"]; !ok {
		t.Fatalf("unexpected key layout: %v", items)
	}
}
