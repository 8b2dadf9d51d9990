package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[92m"
	colorYellow = "\033[93m"
	colorRed    = "\033[91m"
	colorCyan   = "\033[96m"
	colorDim    = "\033[2m"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
var spinnerIdx = 0

// termMu serializes every terminal write so the status line redraw is never
// split by a log line.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a TTY. The dashboard is
// only drawn when it is.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer for log.SetOutput and the zap core that
// shares the dashboard's lock.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner() {
	banner := `
  ___ ___  _ __   __| |_   _ (_) |_
 / __/ _ \| '_ \ / _' | | | || | __|
| (_| (_) | | | | (_| | |_| || | |_
 \___\___/|_| |_|\__,_|\__,_||_|\__|

     chat in, actions out
`
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", padding), colorCyan, l, colorReset)
	}
}

// InitializeTerminal reserves the top rows for the banner and status line and
// scrolls logs below them.
func InitializeTerminal() {
	fmt.Print("\033[2J\033[H")
	PrintBanner()
	fmt.Print("\033[11;r")
	fmt.Print("\033[11;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// PrintLiveStatus redraws the status line on row 9.
func PrintLiveStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	role, task, lastHB := GetStatus()
	running := RunningSteps()

	health, healthColor := "HEALTHY", colorGreen
	switch delta := time.Since(lastHB); {
	case delta >= 90*time.Second:
		health, healthColor = "OFFLINE", colorRed
	case delta >= 40*time.Second:
		health, healthColor = "LAGGING", colorYellow
	}

	spin := " "
	if role != RoleIdle || running > 0 {
		spin = spinnerFrames[spinnerIdx]
		spinnerIdx = (spinnerIdx + 1) % len(spinnerFrames)
	}

	if task == "" {
		task = "waiting for messages"
	}
	if len(task) > 32 {
		task = task[:29] + "..."
	}

	line := fmt.Sprintf(
		"\033[s\033[9;1H\033[K%s%-8s%s %s %-9s %s| steps %d | %s | up %v | %.1fMB%s\033[u",
		healthColor, health, colorReset,
		spin, role,
		colorDim, running, task,
		time.Since(startTime).Round(time.Second),
		float64(m.Alloc)/1024/1024,
		colorReset,
	)

	termMu.Lock()
	fmt.Print(line)
	termMu.Unlock()
}
