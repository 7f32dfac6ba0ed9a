package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/vpn"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotificationInfo NotificationType = iota
	NotificationSuccess
	NotificationWarning
	NotificationError
)

// Notification represents a system notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Icon    string
}

func (n Notification) icon() string {
	if n.Icon != "" {
		return n.Icon
	}
	switch n.Type {
	case NotificationWarning:
		return "dialog-warning"
	case NotificationError:
		return "dialog-error"
	default:
		return "network-vpn"
	}
}

func (n Notification) urgency() string {
	switch n.Type {
	case NotificationError:
		return "critical"
	case NotificationWarning:
		return "normal"
	default:
		return "low"
	}
}

const notifyTimeout = 5 * time.Second

// Notifier shows desktop notifications with notify-send. A disabled
// Notifier drops every notification.
type Notifier struct {
	runner  vpn.Runner
	enabled bool
}

var _ common.Notifier = (*Notifier)(nil)

// NewNotifier returns a notifier that shells out through runner.
func NewNotifier(runner vpn.Runner, enabled bool) *Notifier {
	return &Notifier{runner: runner, enabled: enabled}
}

// Show displays n. Failures are logged, never fatal to the caller.
func (nt *Notifier) Show(n Notification) error {
	if nt == nil || !nt.enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	res, err := nt.runner.Run(ctx, "notify-send",
		"--app-name="+common.AppName,
		"--icon="+n.icon(),
		"--urgency="+n.urgency(),
		n.Title,
		n.Message,
	)
	if err == nil && res.ExitCode != 0 {
		err = fmt.Errorf("notify-send exit status %d: %s", res.ExitCode, strings.TrimSpace(string(res.Output)))
	}
	if err != nil {
		common.LogDebug("Error showing notification: %v", err)
	}
	return err
}

// Notify implements common.Notifier.
func (nt *Notifier) Notify(title, message string) error {
	return nt.Show(Notification{Title: title, Message: message})
}

// NotifyConnected shows a notification when VPN connects
func (nt *Notifier) NotifyConnected(name string) {
	_ = nt.Show(Notification{
		Title:   "VPN Connected",
		Message: "Connected to " + name,
		Type:    NotificationSuccess,
		Icon:    "network-vpn",
	})
}

// NotifyDisconnected shows a notification when VPN disconnects
func (nt *Notifier) NotifyDisconnected(name string) {
	_ = nt.Show(Notification{
		Title:   "VPN Disconnected",
		Message: "Disconnected from " + name,
		Type:    NotificationInfo,
		Icon:    "network-vpn-disconnected",
	})
}

// NotifyError shows a notification for connection errors
func (nt *Notifier) NotifyError(name, errorMsg string) {
	_ = nt.Show(Notification{
		Title:   "Connection Error",
		Message: name + ": " + errorMsg,
		Type:    NotificationError,
		Icon:    "network-vpn-error",
	})
}

// NotifyConnecting shows a notification when VPN is connecting
func (nt *Notifier) NotifyConnecting(name string) {
	_ = nt.Show(Notification{
		Title:   "Connecting VPN",
		Message: "Connecting to " + name + "...",
		Type:    NotificationInfo,
		Icon:    "network-vpn-acquiring",
	})
}
