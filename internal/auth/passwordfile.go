package auth

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Credentials maps username to stored password value, where a value
// beginning with '$' is a bcrypt hash and anything else is compared as
// plaintext in constant time.
type Credentials map[string]string

// LoadPasswordFile parses a UTF-8 file of "user:password" lines, one per
// line. Blank lines are skipped. A line without a colon is a format error.
func LoadPasswordFile(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("auth: opening password file: %w", err)
	}
	defer f.Close()
	return parsePasswordFile(f)
}

func parsePasswordFile(r io.Reader) (Credentials, error) {
	creds := make(Credentials)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("auth: password file line %d: missing ':' separator", lineNo)
		}
		user := line[:idx]
		pass := line[idx+1:]
		if user == "" {
			return nil, fmt.Errorf("auth: password file line %d: empty username", lineNo)
		}
		creds[user] = pass
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("auth: reading password file: %w", err)
	}
	return creds, nil
}
