package tokenstorage

import "sync"

var (
	mu     sync.Mutex
	tokens = make(map[string]struct{})
)

func AddToken(token string) {
	mu.Lock()
	defer mu.Unlock()
	tokens[token] = struct{}{}
}

func CheckToken(token string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := tokens[token]
	return ok
}
