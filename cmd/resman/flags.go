package main

import "time"

const defaultAPIURL = "http://127.0.0.1:8420"

// APIFlags holds daemon connection flags shared by client-side commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Debug      bool
}

// LifecycleFlags holds flags for start/stop/restart commands.
type LifecycleFlags struct {
	APIFlags
	Name string
}

// ConfigFlags holds flags for enable/disable/autorestart commands.
type ConfigFlags struct {
	APIFlags
	Name string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	APIFlags
	Name string
}

// RenameFlags holds flags for the rename command.
type RenameFlags struct {
	APIFlags
	From string
	To   string
}

// DeleteFlags holds flags for the delete command.
type DeleteFlags struct {
	APIFlags
	Name string
}
