package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines something on disk the fetch runtime relies on.
type Requirement struct {
	Name        string
	Path        string
	Description string
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Path        string
	Description string
	Available   bool
	Detail      string
}

// Check reports whether req is present. Paths containing a separator are
// stat'ed; bare names are resolved through PATH. An empty path always passes.
func Check(req Requirement) Status {
	path := strings.TrimSpace(req.Path)
	status := Status{
		Name:        req.Name,
		Path:        path,
		Description: strings.TrimSpace(req.Description),
	}
	if path == "" {
		status.Available = true
		status.Detail = "nothing to check"
		return status
	}
	if !strings.ContainsRune(path, os.PathSeparator) && !strings.ContainsRune(path, '/') {
		if _, err := exec.LookPath(path); err != nil {
			status.Detail = fmt.Sprintf("%s not found", path)
			return status
		}
		status.Available = true
		return status
	}
	if _, err := os.Stat(path); err != nil {
		status.Detail = fmt.Sprintf("%s not found", path)
		return status
	}
	status.Available = true
	return status
}

// CheckAll evaluates the provided requirements in order.
func CheckAll(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(req))
	}
	return results
}
