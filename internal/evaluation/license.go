package evaluation

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var licenseNames = map[string]bool{
	"license":     true,
	"license.txt": true,
	"license.md":  true,
}

// CheckLicenseFile looks for a top-level license file mentioning MIT.
func CheckLicenseFile(repoDir string) Outcome {
	entries, err := os.ReadDir(repoDir)
	if err != nil {
		return Outcome{Name: CheckLicense, Score: 0, Reason: "repository not readable", Logs: err.Error()}
	}

	names := make([]string, 0, 2)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if licenseNames[strings.ToLower(entry.Name())] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var logs []string
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(repoDir, name))
		if err != nil {
			logs = append(logs, name+": "+err.Error())
			continue
		}
		if strings.Contains(strings.ToLower(string(content)), "mit") {
			return Outcome{Name: CheckLicense, Score: 1, Reason: "MIT license found in " + name}
		}
	}

	return Outcome{Name: CheckLicense, Score: 0, Reason: "MIT license not found", Logs: strings.Join(logs, "\n")}
}
