package ui

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"likesync/pkg/config"
	likeerrors "likesync/pkg/errors"
	"likesync/pkg/syncer"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast><visual><binding template="ToastText02">
	<text id="1">%s</text>
	<text id="2">%s</text>
</binding></visual></toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("likesync").Show($toast)
	`, title, message)

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// Notifier prints run events and mirrors the ones enabled in config to the
// desktop
type Notifier struct {
	sender NotificationSender
	cfg    config.NotificationConfig
}

// NewNotifier creates a Notifier for the current platform. Desktop
// notifications are only sent when cfg.Enabled is set.
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	var sender NotificationSender
	if cfg.Enabled {
		switch runtime.GOOS {
		case "linux":
			sender = &LinuxNotificationSender{}
		case "darwin":
			sender = &MacOSNotificationSender{}
		case "windows":
			sender = &WindowsNotificationSender{}
		}
	}
	return &Notifier{sender: sender, cfg: cfg}
}

// NewNotifierWithSender creates a Notifier using the given sender
func NewNotifierWithSender(sender NotificationSender, cfg config.NotificationConfig) *Notifier {
	return &Notifier{sender: sender, cfg: cfg}
}

func (n *Notifier) send(title, message string) {
	if n.sender != nil {
		// desktop delivery is best effort
		_ = n.sender.Send(title, message)
	}
}

// SendNotification sends a desktop notification and prints to console
func (n *Notifier) SendNotification(title, message string) {
	fmt.Fprintf(Output, "\n%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError sends an error notification
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(Output, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess sends a success notification
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(Output, "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

// NotifyResult reports the end of a run according to the configured
// on_complete, on_error and on_rate_limit switches
func (n *Notifier) NotifyResult(result *syncer.Result, err error) {
	if result == nil {
		result = &syncer.Result{}
	}

	if err != nil {
		if isRateLimited(err) && n.cfg.OnRateLimit {
			n.SendError("likesync rate limited", fmt.Sprintf("stopped after %d pages: %v", result.Pages, err))
			return
		}
		if n.cfg.OnError {
			n.SendError("likesync failed", err.Error())
		}
		return
	}

	if !n.cfg.OnComplete {
		return
	}
	msg := fmt.Sprintf("%d new liked posts, %d images, %d external links",
		result.Counters.TotalLikedSeen, result.Counters.ImagesDownloaded, result.Counters.NonNativeURLCount)
	switch result.StopReason {
	case syncer.StopBudget:
		n.SendNotification("likesync paused (request budget)", msg)
	case syncer.StopCancelled:
		n.SendNotification("likesync interrupted", msg)
	default:
		n.SendSuccess("likesync complete", msg)
	}
}

func isRateLimited(err error) bool {
	var apiErr *likeerrors.Error
	return errors.As(err, &apiErr) && apiErr.Type == likeerrors.ErrorTypeRateLimit
}
