package interp

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// aliasFile is the on-disk form: a mapping from alias name to its ordered
// token sequence (target verb first, then literal/placeholder tokens).
type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// loadAliasFile reads the alias table from path. A missing file is an empty
// table, not an error.
func loadAliasFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(map[string][]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	if f.Aliases == nil {
		f.Aliases = make(map[string][]string)
	}
	return f.Aliases, nil
}

// saveAliasesLocked rewrites the alias file if the serialized table differs
// from what was last written, compared by content fingerprint. Caller holds
// the interpreter lock.
func (in *Interpreter) saveAliasesLocked() error {
	if in.aliasPath == "" {
		return nil
	}

	data, err := marshalAliases(in.aliases)
	if err != nil {
		return err
	}

	sum := aliasFingerprint(data)
	if sum == in.aliasSum {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(in.aliasPath), 0o755); err != nil {
		return fmt.Errorf("create alias directory: %w", err)
	}
	if err := os.WriteFile(in.aliasPath, data, 0o644); err != nil {
		return fmt.Errorf("write alias file: %w", err)
	}
	in.aliasSum = sum
	return nil
}

// aliasFingerprint identifies a serialized alias table so unchanged tables
// are not rewritten to disk.
func aliasFingerprint(data []byte) [32]byte {
	return blake3.Sum256(data)
}

func marshalAliases(aliases map[string][]string) ([]byte, error) {
	// yaml.v3 emits map keys in sorted order, so the fingerprint is stable
	// for a given table.
	data, err := yaml.Marshal(aliasFile{Aliases: aliases})
	if err != nil {
		return nil, fmt.Errorf("marshal aliases: %w", err)
	}
	return data, nil
}
