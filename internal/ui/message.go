package ui

import (
	"github.com/desertthunder/spx/internal/control"
)

// sessionUpdatedMsg reports that the session view changed.
type sessionUpdatedMsg struct{}

// loginStartedMsg carries a login waiting for its redirect.
type loginStartedMsg struct {
	login Login
	err   error
}

// loginDoneMsg reports the end of a login attempt.
type loginDoneMsg struct {
	err error
}

// loggedOutMsg reports the end of a logout.
type loggedOutMsg struct {
	err error
}

// actionDoneMsg reports the end of a transport action. Failures are already on the session view.
type actionDoneMsg struct {
	err error
}

// volumeMsg carries the volume after an adjustment.
type volumeMsg float64

// devicesFetchedMsg carries the Connect device list.
type devicesFetchedMsg struct {
	devices []control.Device
	err     error
}

// sideTimeoutMsg ends the double-press window opened by side press seq.
type sideTimeoutMsg struct {
	seq int
}
