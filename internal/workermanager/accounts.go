package workermanager

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/riftline/inspectgate/internal/worker"
)

// LoadAccounts reads the accounts file: one "username:password" per line,
// "#"-prefixed or blank lines ignored, trimmed, then shuffled so repeated
// restarts don't always hand the same accounts to worker 0.
func LoadAccounts(path string) ([]worker.Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening accounts file: %w", err)
	}
	defer f.Close()

	var accounts []worker.Account
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		username, password, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		accounts = append(accounts, worker.Account{
			Username: strings.TrimSpace(username),
			Password: strings.TrimSpace(password),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}

	rand.Shuffle(len(accounts), func(i, j int) {
		accounts[i], accounts[j] = accounts[j], accounts[i]
	})
	return accounts, nil
}

// Partition splits accounts into fixed-size shards of at most size
// accounts each; each shard becomes one Worker's partition.
func Partition(accounts []worker.Account, size int) [][]worker.Account {
	if size <= 0 {
		size = 50
	}
	var parts [][]worker.Account
	for len(accounts) > 0 {
		n := size
		if n > len(accounts) {
			n = len(accounts)
		}
		parts = append(parts, accounts[:n])
		accounts = accounts[n:]
	}
	return parts
}
