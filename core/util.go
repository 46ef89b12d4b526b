package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanName trims `s` and collapses every inner run of whitespace to a single space.
func CleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Getwd finds the project root (the directory holding go.mod).
// go-test changes the working directory to the package being tested, so config and
// assets lookups walk up from there.
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
			return wd
		}
		currDir = newDir
	}
}

// Clock tells the current time. Services take one so time-based rules can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock, in UTC.
var SystemClock Clock = systemClock{}

// FixedClock always returns the same instant. Set T to move it.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Add(d time.Duration) { c.T = c.T.Add(d) }

// StringPtr, TimePtr, BoolPtr return pointers to copies of their arguments.
func StringPtr(s string) *string     { return &s }
func TimePtr(t time.Time) *time.Time { return &t }
func BoolPtr(b bool) *bool           { return &b }
