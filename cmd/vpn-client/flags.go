package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
// A non-empty APIURL sends status, up, down and history to a running serve daemon.
type GlobalFlags struct {
	ConfigPath string
	APIURL     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
	APIUser    string
	APIPass    string
	APIToken   string
}

// HistoryFlags Flag structs to decouple cobra from logic for testing.
type HistoryFlags struct {
	From   string
	To     string
	Status string
	Sort   string
}

// ServeFlags override the [server] section of the config when set.
type ServeFlags struct {
	Listen   string
	BasePath string
}
