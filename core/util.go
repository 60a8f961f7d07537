package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd finds the project root, ie. the closest parent directory holding the go.mod file.
// go-test changes the working directory to the test package being run during tests,
// so paths to assets and config files are resolved from the root instead.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd // binary deployed without sources
		}
		currDir = newDir
	}
}
