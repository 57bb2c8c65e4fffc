package crypto

import (
	"crypto/rand"
	"strings"
)

const backupKeyWords = 24

// GenerateBackupKey returns a 24-word recovery phrase drawn from a fixed
// 256-entry word list, one word per random byte.
func (s *Service) GenerateBackupKey() (string, error) {
	b := make([]byte, backupKeyWords)
	if _, err := rand.Read(b); err != nil {
		return "", opError("generate_backup_key", err)
	}

	words := make([]string, backupKeyWords)
	for i, v := range b {
		words[i] = wordList[v]
	}
	return strings.Join(words, " "), nil
}
