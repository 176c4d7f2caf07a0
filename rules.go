package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ruleActions = []string{"alert", "pass", "drop", "reject"}

// RuleFile summarizes one .rules file without interpreting the rules
// themselves.
type RuleFile struct {
	Filename string    `json:"filename"`
	Filepath string    `json:"filepath"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Enabled  int       `json:"enabled_rules"`
	Disabled int       `json:"disabled_rules"`
}

// ListRuleFiles inventories the .rules files in dir. A missing directory is
// an empty inventory, not an error.
func ListRuleFiles(dir string) ([]RuleFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RuleFile{}, nil
		}
		return nil, err
	}

	files := make([]RuleFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rules") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rf := RuleFile{Filename: entry.Name(), Filepath: path}
		if info, err := entry.Info(); err == nil {
			rf.Size = info.Size()
			rf.Modified = info.ModTime()
		}
		rf.Enabled, rf.Disabled = countRules(path)
		files = append(files, rf)
	}
	return files, nil
}

// countRules counts active rule lines and commented-out rule lines. A
// comment only counts as a disabled rule when it still starts with a rule
// action keyword.
func countRules(path string) (enabled, disabled int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			rest := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if startsWithAction(rest) {
				disabled++
			}
			continue
		}
		if startsWithAction(line) {
			enabled++
		}
	}
	return enabled, disabled
}

func startsWithAction(line string) bool {
	for _, action := range ruleActions {
		if strings.HasPrefix(line, action+" ") {
			return true
		}
	}
	return false
}
