// Package ui holds the terminal and desktop presentation pieces of MerLink.
//
//   - Pick: a bubbletea list picker with type-to-filter, used when an
//     organization or network is not given on the command line
//   - Notifier: desktop notifications through notify-send
//   - StatusBadge: colored connection status for terminal output
//
// Pick takes over the terminal; callers should check IsInteractive first.
package ui
