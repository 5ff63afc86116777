package cellref

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Parser memoizes parsed addresses. The same handful of hot addresses
// tends to arrive over and over within a batching window, so parse work
// is cached in an LRU keyed by "defaultSheet\x00address". Parse failures
// are not cached; malformed input is the caller's bug, not a hot path.
type Parser struct {
	cache *lru.Cache[string, Range]
}

// NewParser creates a Parser with an LRU of the given size. A size of
// zero or less disables memoization.
func NewParser(size int) (*Parser, error) {
	if size <= 0 {
		return &Parser{}, nil
	}
	cache, err := lru.New[string, Range](size)
	if err != nil {
		return nil, err
	}
	return &Parser{cache: cache}, nil
}

// Parse behaves exactly like the package-level Parse but serves repeat
// addresses from the cache.
func (p *Parser) Parse(text string, defaultSheet string) (Range, error) {
	if p.cache == nil {
		return Parse(text, defaultSheet)
	}

	key := defaultSheet + "\x00" + text
	if r, ok := p.cache.Get(key); ok {
		return r, nil
	}

	r, err := Parse(text, defaultSheet)
	if err != nil {
		return Range{}, err
	}
	p.cache.Add(key, r)
	return r, nil
}
