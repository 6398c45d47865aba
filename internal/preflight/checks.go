package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"nxinfo/internal/keys"
)

// CheckKeyFile verifies that a key file exists and is readable.
func CheckKeyFile(name, path string, optional bool) Result {
	result := Result{Name: name, Optional: optional}
	if strings.TrimSpace(path) == "" {
		result.Detail = "path not configured"
		return result
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Detail = fmt.Sprintf("%s (error: does not exist)", path)
			return result
		}
		result.Detail = fmt.Sprintf("%s (error: stat: %v)", path, err)
		return result
	}
	if info.IsDir() {
		result.Detail = fmt.Sprintf("%s (error: is a directory)", path)
		return result
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		result.Detail = fmt.Sprintf("%s (error: not readable: %v)", path, err)
		return result
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("%s (%s)", path, humanize.IBytes(uint64(info.Size())))
	return result
}

// CheckRequiredKeys verifies that the console keys needed to read content
// headers are present.
func CheckRequiredKeys(store *keys.Store) Result {
	const name = "Required keys"
	if missing := store.MissingRequired(); len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("present (%d title keys)", store.TitleKeyCount())}
}

// CheckSDKeys reports whether installed titles on a card can be read.
func CheckSDKeys(store *keys.Store) Result {
	const name = "SD card keys"
	if !store.HasSDKeys() {
		return Result{Name: name, Optional: true, Detail: "missing " + strings.Join(keys.SDKeys, ", ") + "; card scans unavailable"}
	}
	return Result{Name: name, Optional: true, Passed: true, Detail: "present"}
}

// CheckBinary verifies that an external command resolves on PATH.
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckVersionList verifies that the version list endpoint answers.
func CheckVersionList(ctx context.Context, url string, timeout time.Duration) Result {
	const name = "Version list"

	url = strings.TrimSpace(url)
	if url == "" {
		return Result{Name: name, Optional: true, Detail: "missing url"}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, url, nil)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return Result{Name: name, Optional: true, Passed: true, Detail: "Reachable"}
	}
	return Result{Name: name, Optional: true, Detail: fmt.Sprintf("unexpected status (%d)", resp.StatusCode)}
}

// CheckVersionCache reports how old the cached version list is.
func CheckVersionCache(path string, now time.Time) Result {
	const name = "Version cache"
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: "not downloaded yet"}
	}
	return Result{Name: name, Optional: true, Passed: true,
		Detail: fmt.Sprintf("%s (updated %s)", path, humanize.RelTime(info.ModTime(), now, "ago", "from now"))}
}

func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	return err.Error()
}
