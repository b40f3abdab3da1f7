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
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorCyan    = "\033[36m"
	colorNeon    = "\033[96m"
	colorMagenta = "\033[95m"
	colorDim     = "\033[2m"
)

var spinnerFrames = []string{"◜", "◝", "◞", "◟"}
var spinnerIdx = 0

// termMu synchronizes ALL terminal output so that the cursor save/restore
// in PrintLiveStatus can never be interrupted by a log write.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// TermWriter is a mutex-guarded io.Writer for log output, keeping log
// lines inside the scroll region while the status line is pinned below.
type TermWriter struct{}

func NewTermWriter() *TermWriter {
	return &TermWriter{}
}

func (w *TermWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stdout.Write(p)
}

func PrintBanner() {
	lines := []string{
		"",
		colorNeon + colorBold + "  VARTA" + colorReset + colorDim + "  multi-step agent core" + colorReset,
		colorCyan + "  " + strings.Repeat("─", 40) + colorReset,
		"",
	}
	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range lines {
		fmt.Println(l)
	}
}

// InitializeTerminal reserves the bottom line of the terminal for the
// live status bar by shrinking the scroll region by one row.
func InitializeTerminal() {
	termMu.Lock()
	defer termMu.Unlock()
	_, rows := termSize()
	if rows > 2 {
		fmt.Printf("\033[1;%dr", rows-1)
	}
}

// CleanupTerminal restores the full scroll region and clears the status bar.
func CleanupTerminal() {
	termMu.Lock()
	defer termMu.Unlock()
	_, rows := termSize()
	fmt.Print("\033[r")
	if rows > 0 {
		fmt.Printf("\033[%d;1H\033[2K", rows)
	}
	fmt.Print(colorReset)
}

func termSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80, 24
	}
	return w, h
}

// PrintLiveStatus redraws the pinned status line: role, active task,
// uptime, goroutine count and heartbeat age.
func PrintLiveStatus() {
	role, task, hb := GetStatus()

	spinnerIdx = (spinnerIdx + 1) % len(spinnerFrames)
	spin := spinnerFrames[spinnerIdx]

	uptime := time.Since(startTime).Round(time.Second)
	hbAge := time.Since(hb).Round(time.Second)

	progress := ""
	if done, total := StepProgress(); total > 0 {
		progress = fmt.Sprintf(" step %d/%d", done, total)
	}

	line := fmt.Sprintf(" %s %s[%s]%s%s %s %s| up %s | go %d | hb %s ago",
		spin, colorMagenta, role, colorReset, progress, truncateTask(task), colorDim,
		uptime, runtime.NumGoroutine(), hbAge)

	w, rows := termSize()
	if len(line) > w {
		line = line[:w]
	}

	termMu.Lock()
	defer termMu.Unlock()
	// Save cursor, jump to the reserved bottom row, redraw, restore.
	fmt.Printf("\0337\033[%d;1H\033[2K%s%s\0338", rows, line, colorReset)
}

func truncateTask(task string) string {
	if task == "" {
		return "waiting for messages"
	}
	if len(task) > 48 {
		return task[:45] + "..."
	}
	return task
}
