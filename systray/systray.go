package systray

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"markestedt/keyguard/guard"
)

// Controller is the part of the guard the tray menu drives
type Controller interface {
	DisableAll(ctx context.Context) (bool, error)
	EnableAll() bool
	Status() guard.Status
}

// SystrayManager manages the system tray icon and menu
type SystrayManager struct {
	ctrl     Controller
	webPort  int
	iconData []byte
	quit     chan struct{}

	mu      sync.Mutex
	mStatus *systray.MenuItem
	mBlock  *systray.MenuItem
	mAllow  *systray.MenuItem
}

// NewSystrayManager creates a new systray manager. webPort is zero when
// the control server is disabled.
func NewSystrayManager(ctrl Controller, webPort int, iconData []byte) *SystrayManager {
	return &SystrayManager{
		ctrl:     ctrl,
		webPort:  webPort,
		iconData: iconData,
		quit:     make(chan struct{}),
	}
}

// Run starts the system tray (blocking call)
func (m *SystrayManager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Stop stops the system tray
func (m *SystrayManager) Stop() {
	systray.Quit()
}

// WaitForQuit returns a channel that will be closed when user clicks Quit
func (m *SystrayManager) WaitForQuit() <-chan struct{} {
	return m.quit
}

// Update refreshes the menu from a controller status. It is safe to call
// before the tray is ready.
func (m *SystrayManager) Update(st guard.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mStatus == nil {
		return
	}

	m.mStatus.SetTitle(statusLabel(st))
	systray.SetTooltip("Keyguard - " + statusLabel(st))

	blocked, total := countBlocked(st)
	if blocked == total && st.Active {
		m.mBlock.Disable()
	} else {
		m.mBlock.Enable()
	}
	if blocked == 0 && !st.Active {
		m.mAllow.Disable()
	} else {
		m.mAllow.Enable()
	}
}

// onReady is called when the systray is ready
func (m *SystrayManager) onReady() {
	if len(m.iconData) > 0 {
		systray.SetIcon(m.iconData)
	}
	systray.SetTitle("Keyguard")

	m.mu.Lock()
	m.mStatus = systray.AddMenuItem("", "Current keyboard state")
	m.mStatus.Disable()
	systray.AddSeparator()
	m.mBlock = systray.AddMenuItem("Block all keys", "Block every rule")
	m.mAllow = systray.AddMenuItem("Allow all keys", "Allow every key again")
	m.mu.Unlock()

	var mOpenStatus *systray.MenuItem
	if m.webPort > 0 {
		mOpenStatus = systray.AddMenuItem("Open status", "Show the control API status")
	} else {
		// a nil item would panic on ClickedCh
		mOpenStatus = &systray.MenuItem{ClickedCh: make(chan struct{})}
	}
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit Keyguard")

	m.Update(m.ctrl.Status())

	go func() {
		for {
			select {
			case <-m.mBlock.ClickedCh:
				if _, err := m.ctrl.DisableAll(context.Background()); err != nil {
					slog.Error("Failed to block keys from system tray", "error", err)
				}
			case <-m.mAllow.ClickedCh:
				m.ctrl.EnableAll()
			case <-mOpenStatus.ClickedCh:
				m.openStatus()
			case <-mQuit.ClickedCh:
				slog.Info("User requested quit from system tray")
				close(m.quit)
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the systray is exiting
func (m *SystrayManager) onExit() {
	slog.Info("System tray exited")
}

// openStatus opens the status endpoint in the default browser
func (m *SystrayManager) openStatus() {
	url := fmt.Sprintf("http://127.0.0.1:%d/api/status", m.webPort)
	slog.Info("Opening status", "url", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		slog.Error("Unsupported platform for opening browser", "platform", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to open status", "error", err)
	}
}

func countBlocked(st guard.Status) (blocked, total int) {
	for _, b := range st.Rules {
		total++
		if b {
			blocked++
		}
	}
	return blocked, total
}

// statusLabel summarises a status for the menu
func statusLabel(st guard.Status) string {
	blocked, total := countBlocked(st)
	switch {
	case !st.Active:
		return "Hook off, keys allowed"
	case blocked == total:
		return "Blocking all keys"
	case blocked == 0:
		return "Hook on, no rules active"
	default:
		return fmt.Sprintf("Blocking %d of %d rules", blocked, total)
	}
}
