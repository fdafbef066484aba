package prompt

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoPrompt means no configuration exists anywhere on the fallback chain.
// Callers must surface it instead of calling the model.
var ErrNoPrompt = errors.New("no prompt available")

type Level int

const (
	LevelExact Level = iota
	LevelCategoryDefault
	LevelScopeDefault
	LevelGlobalDefault
)

func (l Level) String() string {
	switch l {
	case LevelExact:
		return "exact"
	case LevelCategoryDefault:
		return "category_default"
	case LevelScopeDefault:
		return "scope_default"
	case LevelGlobalDefault:
		return "global_default"
	default:
		return "unknown"
	}
}

type Candidate struct {
	Key   Key
	Level Level
}

// FallbackChain lists the keys Resolve consults, most specific first. The
// order is fixed and independent of store contents.
func FallbackChain(requested Key) []Candidate {
	return []Candidate{
		{Key: requested, Level: LevelExact},
		{Key: Key{Scope: requested.Scope, Category: requested.Category, Kind: Default}, Level: LevelCategoryDefault},
		{Key: Key{Scope: requested.Scope, Category: Default, Kind: Default}, Level: LevelScopeDefault},
		{Key: GlobalDefault(), Level: LevelGlobalDefault},
	}
}

type Resolution struct {
	Requested Key
	Matched   Key
	Level     Level
	Config    Config
}

// Resolve walks the fallback chain over store and returns the first hit.
func Resolve(ctx context.Context, store Store, requested Key) (Resolution, error) {
	if store == nil {
		return Resolution{}, fmt.Errorf("resolve %s: nil store", requested)
	}
	seen := make(map[string]struct{}, 4)
	for _, c := range FallbackChain(requested) {
		id := c.Key.String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cfg, ok, err := store.Get(ctx, c.Key)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolve %s at %s: %w", requested, id, err)
		}
		if ok {
			return Resolution{Requested: requested, Matched: c.Key, Level: c.Level, Config: cfg}, nil
		}
	}
	return Resolution{}, fmt.Errorf("resolve %s: %w", requested, ErrNoPrompt)
}
