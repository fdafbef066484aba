package source

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("CASEPROMPT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CASEPROMPT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rdb.Close()

	hash := fmt.Sprintf("caseprompt:test:%d", time.Now().UnixNano())
	t.Cleanup(func() { rdb.Del(context.Background(), hash) })
	store := NewRedisStore(rdb, hash)

	if _, ok, err := store.Get(ctx, prompt.GlobalDefault()); err != nil || ok {
		t.Fatalf("expected miss, ok=%t err=%v", ok, err)
	}
	cfg := prompt.Config{
		Template:          "hello",
		Constraints:       prompt.Constraints{MaxReasonWords: 10},
		EvidenceAllowList: map[string][]string{prompt.DefaultIntent: {"notes[*].text"}},
	}
	if err := store.Set(ctx, prompt.GlobalDefault(), cfg); err != nil {
		t.Fatalf("set: %v", err)
	}
	res, err := prompt.Resolve(ctx, store, prompt.NewKey("Ortho", "SCH", "x"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Config.Constraints.MaxReasonWords != 10 || res.Config.VersionID == "" {
		t.Fatalf("unexpected config %+v", res.Config)
	}
	keys, err := store.Keys(ctx)
	if err != nil || len(keys) != 1 {
		t.Fatalf("keys = %v err=%v", keys, err)
	}
}

func TestDialRedisRequiresAddr(t *testing.T) {
	if _, err := DialRedis(context.Background(), " "); err == nil {
		t.Fatal("expected missing addr error")
	}
}
