package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Marshal renders a profile as indented JSON.
func Marshal(p Profile) ([]byte, error) {
	out, err := jsoniter.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding profile")
	}
	return out, nil
}

// Export writes an indented JSON snapshot into dir and returns the
// file path. The name carries the address and a timestamp so repeated
// exports never clobber each other.
func Export(dir string, p Profile) (string, error) {
	out, err := Marshal(p)
	if err != nil {
		return "", err
	}

	addr := strings.ToLower(strings.ReplaceAll(p.Address, ":", ""))
	name := fmt.Sprintf("gattscope_%s_%s.json", addr, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", errors.Wrap(err, "writing profile export")
	}
	return path, nil
}
